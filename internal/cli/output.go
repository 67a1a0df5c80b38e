package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/xraph/cmdq/job"
)

// jobView is the exported representation of a job. Timestamps use the
// fixed-width persisted layout.
type jobView struct {
	ID         string `json:"id" yaml:"id"`
	Command    string `json:"command" yaml:"command"`
	State      string `json:"state" yaml:"state"`
	Attempts   int    `json:"attempts" yaml:"attempts"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
	LastError  string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	CreatedAt  string `json:"created_at" yaml:"created_at"`
	UpdatedAt  string `json:"updated_at" yaml:"updated_at"`
}

func viewOf(j *job.Job) jobView {
	return jobView{
		ID:         j.ID.String(),
		Command:    j.Command,
		State:      string(j.State),
		Attempts:   j.Attempts,
		MaxRetries: j.MaxRetries,
		LastError:  j.LastError,
		CreatedAt:  j.CreatedAt.UTC().Format(job.TimeFormat),
		UpdatedAt:  j.UpdatedAt.UTC().Format(job.TimeFormat),
	}
}

func viewsOf(jobs []*job.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j))
	}
	return views
}

// encode writes v to w as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
