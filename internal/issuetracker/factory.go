package issuetracker

import "fmt"

// Config names which backend to build from the tracker config block.
type Config struct {
	Backend    string // "linear", "jira", "local"
	BaseURL    string
	Username   string
	APIToken   string
	ProjectDir string
}

// New builds the Client named by cfg.Backend.
func New(cfg Config) (Client, error) {
	switch cfg.Backend {
	case "linear":
		return NewLinearBackend(cfg.APIToken), nil
	case "jira":
		return NewJiraBackend(cfg.BaseURL, cfg.Username, cfg.APIToken), nil
	case "local":
		return NewLocalBackend(cfg.ProjectDir), nil
	default:
		return nil, fmt.Errorf("issuetracker: unknown backend %q", cfg.Backend)
	}
}
