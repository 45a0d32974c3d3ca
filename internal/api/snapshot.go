package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/surveydesk/internal/services"
)

// Snapshot is a portable dump of every entity, used to seed a store.
type Snapshot struct {
	Users     []*services.User     `json:"users"`
	Groups    []*services.Group    `json:"groups"`
	Surveys   []*services.Survey   `json:"surveys"`
	Templates []*services.Template `json:"templates,omitempty"`
	Responses []*services.Response `json:"responses"`
}

// LoadSnapshot reads a JSON or YAML snapshot, chosen by file extension.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAMLSnapshot(raw)
	default:
		return decodeJSONSnapshot(raw)
	}
}

func decodeJSONSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// YAML goes through a generic document and JSON so the json tags on the
// domain types remain the single field mapping.
func decodeYAMLSnapshot(raw []byte) (*Snapshot, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot yaml: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert snapshot yaml: %w", err)
	}
	return decodeJSONSnapshot(b)
}

type CopyStats struct {
	Users     int
	Groups    int
	Surveys   int
	Templates int
	Responses int
}

// CopySnapshot writes every snapshot record into dst. Records whose ID
// already exists are replaced, so importing the same snapshot twice leaves
// the store unchanged. Survey assignment is rebuilt from the groups.
func CopySnapshot(ctx context.Context, snap *Snapshot, dst Store) (CopyStats, error) {
	var st CopyStats
	if snap == nil {
		return st, nil
	}
	for _, u := range snap.Users {
		if u == nil {
			continue
		}
		if err := dst.UpsertUser(ctx, u); err != nil {
			return st, fmt.Errorf("user %s: %w", u.ID, err)
		}
		st.Users++
	}
	for _, sv := range snap.Surveys {
		if sv == nil {
			continue
		}
		if sv.AssignedGroups == nil {
			sv.AssignedGroups = []string{}
		}
		ok, err := dst.UpdateSurvey(ctx, sv)
		if err == nil && !ok {
			err = dst.CreateSurvey(ctx, sv)
		}
		if err != nil {
			return st, fmt.Errorf("survey %s: %w", sv.ID, err)
		}
		st.Surveys++
	}
	for _, g := range snap.Groups {
		if g == nil {
			continue
		}
		ok, err := dst.UpdateGroup(ctx, g)
		if err == nil && !ok {
			err = dst.CreateGroup(ctx, g)
		}
		if err != nil {
			return st, fmt.Errorf("group %s: %w", g.ID, err)
		}
		for _, sid := range g.AssignedSurveys {
			if _, _, err := dst.AssignGroupSurvey(ctx, g.ID, sid); err != nil {
				return st, fmt.Errorf("group %s: assign %s: %w", g.ID, sid, err)
			}
		}
		st.Groups++
	}
	for _, t := range snap.Templates {
		if t == nil {
			continue
		}
		ok, err := dst.UpdateTemplate(ctx, t)
		if err == nil && !ok {
			err = dst.CreateTemplate(ctx, t)
		}
		if err != nil {
			return st, fmt.Errorf("template %s: %w", t.ID, err)
		}
		st.Templates++
	}
	for _, r := range snap.Responses {
		if r == nil {
			continue
		}
		if err := dst.PutResponse(ctx, r); err != nil {
			return st, fmt.Errorf("response %s: %w", r.ID, err)
		}
		st.Responses++
	}
	return st, nil
}
