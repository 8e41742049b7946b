package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"filecask/internal/api"
	"filecask/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileList(files []api.FileResponse) error {
	for _, file := range files {
		if err := writePlain("%s\n", formatFileLine(file)); err != nil {
			return err
		}
	}
	return nil
}

func writeFileDetail(file api.FileResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", file.ID),
		fmt.Sprintf("name: %s", file.DisplayName),
		fmt.Sprintf("owner: %s", file.Owner),
		fmt.Sprintf("size: %s (%d bytes)", humanize.IBytes(uint64(file.LogicalSize)), file.LogicalSize),
		fmt.Sprintf("digest: %s", file.Digest),
		fmt.Sprintf("visibility: %s", file.Visibility),
		fmt.Sprintf("created_at: %s", formatTime(file.CreatedAt)),
	}
	if file.FolderID != "" {
		lines = append(lines, fmt.Sprintf("folder_id: %s", file.FolderID))
	}
	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func formatFileLine(file api.FileResponse) string {
	return fmt.Sprintf("%s  %8s  [%s]  %s", file.ID, humanize.IBytes(uint64(file.LogicalSize)), file.Visibility, file.DisplayName)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
