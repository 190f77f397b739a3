package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// SaveJob records a submitted job next to its task file so a later run can
// resume polling instead of resubmitting.
func SaveJob(path string, job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadJob reads a job saved by SaveJob. It returns nil, nil when no job was saved.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job file %s: %w", path, err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("job file %s has no job_id", path)
	}
	return &job, nil
}
