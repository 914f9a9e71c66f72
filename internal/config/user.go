package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sheetflow/internal/errs"
)

// userProfileVersion is the current user.json schema version.
const userProfileVersion = 3

// UserProfile is the contents of ~/.mito/user.json.
type UserProfile struct {
	Version   int             `json:"version"`
	UserID    string          `json:"user_id"`
	CreatedAt string          `json:"created_at"`
	Fields    map[string]any  `json:"fields"`
	Checklist map[string]bool `json:"checklist"`
}

func userProfilePath() string { return filepath.Join(MitoFolder(), "user.json") }

// LoadUserProfile reads the profile, creating a fresh one on first run
// and upgrading older schema versions in place.
func LoadUserProfile() (*UserProfile, error) {
	var raw map[string]any
	err := ReadJSONFile(userProfilePath(), &raw)
	if os.IsNotExist(err) {
		p := &UserProfile{
			Version:   userProfileVersion,
			UserID:    uuid.NewString(),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Fields:    map[string]any{},
			Checklist: map[string]bool{},
		}
		return p, p.Save()
	}
	if err != nil {
		return nil, err
	}
	upgraded, err := upgradeUserProfile(raw)
	if err != nil {
		return nil, err
	}
	return upgraded, nil
}

// Save writes the profile back to user.json.
func (p *UserProfile) Save() error {
	return WriteJSONFile(userProfilePath(), p)
}

// SetField records one shell-supplied user field.
func (p *UserProfile) SetField(key string, value any) {
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	p.Fields[key] = value
}

// MarkChecklist flags one onboarding checklist item done or undone.
func (p *UserProfile) MarkChecklist(item string, done bool) {
	if p.Checklist == nil {
		p.Checklist = map[string]bool{}
	}
	p.Checklist[item] = done
}

// upgradeUserProfile walks the raw file through each schema bump.
// v1 stored the id under "static_user_id"; v2 lacked the fields and
// checklist maps.
func upgradeUserProfile(raw map[string]any) (*UserProfile, error) {
	version := 1
	if v, ok := raw["version"].(float64); ok {
		version = int(v)
	}
	if version > userProfileVersion {
		return nil, errs.UserConfig("user_profile_too_new",
			"user.json version %d is newer than supported %d", version, userProfileVersion)
	}

	if version < 2 {
		if id, ok := raw["static_user_id"].(string); ok {
			raw["user_id"] = id
			delete(raw, "static_user_id")
		}
	}

	p := &UserProfile{Version: userProfileVersion}
	if id, ok := raw["user_id"].(string); ok {
		p.UserID = id
	}
	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}
	if at, ok := raw["created_at"].(string); ok {
		p.CreatedAt = at
	}
	p.Fields = map[string]any{}
	if fields, ok := raw["fields"].(map[string]any); ok {
		p.Fields = fields
	}
	p.Checklist = map[string]bool{}
	if items, ok := raw["checklist"].(map[string]any); ok {
		for k, v := range items {
			if b, ok := v.(bool); ok {
				p.Checklist[k] = b
			}
		}
	}
	return p, nil
}
