package processor

import (
	"os"
)

type Cleanup struct {
	keep bool
}

func NewCleanup(keep bool) *Cleanup {
	return &Cleanup{keep: keep}
}

// CleanupJob removes a job's working directory unless the processor was
// configured to keep it.
func (c *Cleanup) CleanupJob(workDir string) error {
	if c.keep || workDir == "" {
		return nil
	}
	err := os.RemoveAll(workDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
