package registry

import (
	"encoding/json"
	"strconv"
)

// The registry's JSON is parsed leniently: payloads are walked as untyped
// maps and well-known key spellings are tried in order, so server-side
// additions and renames never break the client.

func parseSkillPage(body []byte) SkillPage {
	var page SkillPage

	var arr []map[string]any
	if json.Unmarshal(body, &arr) == nil {
		for _, row := range arr {
			page.Items = append(page.Items, mapSummary(row))
		}
		page.Items = compactSummaries(page.Items)
		return page
	}
	var obj map[string]any
	if json.Unmarshal(body, &obj) != nil {
		return page
	}
	for _, key := range []string{"items", "skills", "data", "results"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			page.Items = append(page.Items, mapSummary(row))
		}
	}
	page.Items = compactSummaries(page.Items)
	page.NextCursor = stringField(obj, "nextCursor", "next_cursor", "cursor")
	return page
}

func parseSkillDetail(slug string, body []byte) SkillDetail {
	var obj map[string]any
	if json.Unmarshal(body, &obj) != nil {
		return SkillDetail{Slug: slug}
	}
	detail := SkillDetail{
		Slug:        firstNonEmpty(stringField(obj, "slug", "id"), slug),
		Name:        stringField(obj, "title", "displayName", "name"),
		Description: stringField(obj, "description", "summary"),
		Version:     stringField(obj, "version", "latestVersion"),
		UpdatedAt:   millisField(obj, "updatedAt", "updated_at"),
		Moderation:  parseModeration(obj),
	}
	if detail.Name == "" {
		detail.Name = detail.Slug
	}
	return detail
}

// parseModeration reads the moderation verdict, which some registry
// responses nest under a "moderation" object and others flatten into
// the row itself. A flag set in either place counts.
func parseModeration(obj map[string]any) Moderation {
	mod := Moderation{
		IsMalwareBlocked: boolField(obj, "isMalwareBlocked", "is_malware_blocked"),
		IsSuspicious:     boolField(obj, "isSuspicious", "is_suspicious"),
	}
	if modMap, ok := obj["moderation"].(map[string]any); ok {
		mod.IsMalwareBlocked = mod.IsMalwareBlocked || boolField(modMap, "isMalwareBlocked", "is_malware_blocked")
		mod.IsSuspicious = mod.IsSuspicious || boolField(modMap, "isSuspicious", "is_suspicious")
	}
	return mod
}

func parseVersionPage(body []byte) VersionPage {
	var page VersionPage
	var rawAny any
	if json.Unmarshal(body, &rawAny) != nil {
		return page
	}
	switch v := rawAny.(type) {
	case []any:
		for _, item := range v {
			if info, ok := mapVersionItem(item); ok {
				page.Items = append(page.Items, info)
			}
		}
	case map[string]any:
		for _, key := range []string{"items", "versions", "data", "results"} {
			list, ok := v[key].([]any)
			if !ok {
				continue
			}
			for _, item := range list {
				if info, ok := mapVersionItem(item); ok {
					page.Items = append(page.Items, info)
				}
			}
		}
		page.NextCursor = stringField(v, "nextCursor", "next_cursor", "cursor")
	}
	page.Items = compactVersions(page.Items)
	return page
}

func parseResolution(body []byte) Resolution {
	var obj map[string]any
	if json.Unmarshal(body, &obj) != nil {
		return Resolution{}
	}
	return Resolution{
		Matching: stringField(obj, "matching", "matchingVersion", "version"),
		Latest:   stringField(obj, "latest", "latestVersion"),
	}
}

func mapSummary(row map[string]any) SkillSummary {
	s := SkillSummary{
		Slug:        stringField(row, "slug", "name", "id"),
		Name:        stringField(row, "title", "displayName", "name", "slug"),
		Description: stringField(row, "description", "summary"),
		Version:     stringField(row, "version", "latestVersion"),
		Moderation:  parseModeration(row),
	}
	return s
}

func mapVersionItem(item any) (VersionInfo, bool) {
	switch iv := item.(type) {
	case string:
		if iv == "" {
			return VersionInfo{}, false
		}
		return VersionInfo{Version: iv}, true
	case map[string]any:
		info := VersionInfo{
			Version:   stringField(iv, "version", "name", "id"),
			CreatedAt: millisField(iv, "createdAt", "created_at"),
			Changelog: stringField(iv, "changelog", "notes"),
		}
		if info.Version == "" {
			return VersionInfo{}, false
		}
		return info, true
	}
	return VersionInfo{}, false
}

func compactSummaries(in []SkillSummary) []SkillSummary {
	seen := map[string]struct{}{}
	out := make([]SkillSummary, 0, len(in))
	for _, item := range in {
		if item.Slug == "" {
			continue
		}
		if _, ok := seen[item.Slug]; ok {
			continue
		}
		seen[item.Slug] = struct{}{}
		if item.Name == "" {
			item.Name = item.Slug
		}
		out = append(out, item)
	}
	return out
}

func compactVersions(in []VersionInfo) []VersionInfo {
	seen := map[string]struct{}{}
	out := make([]VersionInfo, 0, len(in))
	for _, item := range in {
		if _, ok := seen[item.Version]; ok {
			continue
		}
		seen[item.Version] = struct{}{}
		out = append(out, item)
	}
	return out
}

func boolField(row map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := row[k].(bool); ok && v {
			return true
		}
	}
	return false
}

func stringField(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// millisField reads an epoch-millisecond timestamp that may arrive as a
// JSON number or a numeric string.
func millisField(row map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := row[k].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
