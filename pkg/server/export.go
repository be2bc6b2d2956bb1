package server

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gohall/pkg/store"
)

// UserYAML is one user in a YAML export. Password hashes are never exported.
type UserYAML struct {
	Username          string `yaml:"username"`
	OnlineTimeSeconds int64  `yaml:"online_time_seconds"`
	CreatedAt         string `yaml:"created_at"`
}

// UsersExport is the top-level YAML document for a user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all users as YAML.
func ExportUsersYAML(st store.UserStore) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}

	export := UsersExport{Users: make([]UserYAML, 0, len(users))}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			Username:          u.Username,
			OnlineTimeSeconds: u.OnlineTime,
			CreatedAt:         u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}
