// ABOUTME: Connection profile data model: SQLite and remote (MySQL/MariaDB) variants
// ABOUTME: JSON encoding matches the persisted recents shape with a provider discriminator

package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider names a database engine. The values are the persisted discriminator.
type Provider string

const (
	ProviderSQLite  Provider = "SQLite"
	ProviderMySQL   Provider = "MySQL"
	ProviderMariaDB Provider = "MariaDB"
)

// ParseProvider resolves a provider name case-insensitively.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return ProviderSQLite, nil
	case "mysql":
		return ProviderMySQL, nil
	case "mariadb":
		return ProviderMariaDB, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}

// ConnectionProfile is either a SQLiteProfile or a RemoteProfile.
type ConnectionProfile interface {
	Provider() Provider
	isConnectionProfile()
}

// SQLiteProfile points at a local database file. It carries no secret.
type SQLiteProfile struct {
	File string
}

// Provider implements ConnectionProfile.
func (SQLiteProfile) Provider() Provider { return ProviderSQLite }

func (SQLiteProfile) isConnectionProfile() {}

// RemoteProfile describes a server connection. Password is the only field
// that is ever encrypted at rest.
type RemoteProfile struct {
	Kind     Provider // ProviderMySQL or ProviderMariaDB
	URL      string   // host[:port]/database[?params]
	User     string
	Password string
}

// Provider implements ConnectionProfile.
func (p RemoteProfile) Provider() Provider { return p.Kind }

func (RemoteProfile) isConnectionProfile() {}

// StoredProfile is one entry of the recents list.
type StoredProfile struct {
	ID        string
	LocalPath *string // nil until the UI sets an override
	Setting   ConnectionProfile
}

// Clone returns a copy that shares no pointers with p.
func (p StoredProfile) Clone() StoredProfile {
	out := StoredProfile{ID: p.ID, Setting: p.Setting}
	if p.LocalPath != nil {
		path := *p.LocalPath
		out.LocalPath = &path
	}
	return out
}

type sqliteJSON struct {
	Provider Provider `json:"provider"`
	File     string   `json:"file"`
}

type remoteJSON struct {
	Provider Provider `json:"provider"`
	URL      string   `json:"url"`
	User     string   `json:"user"`
	Password string   `json:"password"`
}

// settingJSON is the union of both shapes, used when decoding.
type settingJSON struct {
	Provider Provider `json:"provider"`
	File     string   `json:"file"`
	URL      string   `json:"url"`
	User     string   `json:"user"`
	Password string   `json:"password"`
}

type storedProfileJSON struct {
	ID        string          `json:"id"`
	LocalPath *string         `json:"localPath"`
	Setting   json.RawMessage `json:"setting"`
}

// MarshalProfile encodes a profile in its persisted shape.
func MarshalProfile(p ConnectionProfile) ([]byte, error) {
	switch v := p.(type) {
	case SQLiteProfile:
		return json.Marshal(sqliteJSON{Provider: ProviderSQLite, File: v.File})
	case RemoteProfile:
		if v.Kind != ProviderMySQL && v.Kind != ProviderMariaDB {
			return nil, fmt.Errorf("remote profile has unsupported provider %q", v.Kind)
		}
		return json.Marshal(remoteJSON{Provider: v.Kind, URL: v.URL, User: v.User, Password: v.Password})
	case nil:
		return nil, fmt.Errorf("profile is nil")
	default:
		return nil, fmt.Errorf("unsupported profile type %T", p)
	}
}

// UnmarshalProfile decodes a persisted profile, dispatching on its provider.
func UnmarshalProfile(data []byte) (ConnectionProfile, error) {
	var raw settingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	switch raw.Provider {
	case ProviderSQLite:
		return SQLiteProfile{File: raw.File}, nil
	case ProviderMySQL, ProviderMariaDB:
		return RemoteProfile{Kind: raw.Provider, URL: raw.URL, User: raw.User, Password: raw.Password}, nil
	default:
		return nil, fmt.Errorf("decoding profile: unknown provider %q", raw.Provider)
	}
}

// MarshalJSON implements json.Marshaler.
func (p StoredProfile) MarshalJSON() ([]byte, error) {
	setting, err := MarshalProfile(p.Setting)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	return json.Marshal(storedProfileJSON{ID: p.ID, LocalPath: p.LocalPath, Setting: setting})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StoredProfile) UnmarshalJSON(data []byte) error {
	var raw storedProfileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	setting, err := UnmarshalProfile(raw.Setting)
	if err != nil {
		return fmt.Errorf("profile %s: %w", raw.ID, err)
	}
	p.ID = raw.ID
	p.LocalPath = raw.LocalPath
	p.Setting = setting
	return nil
}
