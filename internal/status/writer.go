package status

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CCLDateLayout is the accepted CCL date format.
const CCLDateLayout = "2006-01-02"

// Writer commits notice changes to the store file.
type Writer struct {
	noticePath string
}

// NewWriter creates a [Writer] that auto-discovers the store under basePath.
func NewWriter(basePath string) *Writer {
	return &Writer{
		noticePath: ResolvePath(basePath, ""),
	}
}

// NewWriterWithPath creates a [Writer] for an explicit store path.
func NewWriterWithPath(basePath, noticePath string) *Writer {
	return &Writer{
		noticePath: ResolvePath(basePath, noticePath),
	}
}

// UpdateStatus sets the status of a client's notice.
func (w *Writer) UpdateStatus(clientID string, newStatus Status) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid status: %s", newStatus)
	}

	return w.update(clientID, func(n *Notice) {
		n.Status = newStatus
	})
}

// UpdateCCLDate records the CCL date pushed to a client's matters.
func (w *Writer) UpdateCCLDate(clientID, date string) error {
	if _, err := time.Parse(CCLDateLayout, date); err != nil {
		return fmt.Errorf("invalid ccl date %q: expected YYYY-MM-DD", date)
	}

	return w.update(clientID, func(n *Notice) {
		n.CCLDate = date
	})
}

func (w *Writer) update(clientID string, mutate func(*Notice)) error {
	file, err := readNoticeFile(w.noticePath)
	if err != nil {
		return err
	}

	notice, ok := file.Notices[clientID]
	if !ok || notice == nil {
		return fmt.Errorf("%w: %s", ErrNoticeNotFound, clientID)
	}
	mutate(notice)

	updatedData, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal notices: %w", err)
	}

	// Write to temp, then rename.
	tmpPath := w.noticePath + ".tmp"
	if err := os.WriteFile(tmpPath, updatedData, 0644); err != nil {
		return fmt.Errorf("failed to write notices: %w", err)
	}

	if err := os.Rename(tmpPath, w.noticePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write notices: %w", err)
	}

	return nil
}
