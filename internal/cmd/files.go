package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/tui"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

// sensitivityLevels are offered when upload is run interactively without --sensitivity
var sensitivityLevels = []string{"public", "internal", "confidential", "restricted"}

var filesCmd = &cobra.Command{
	Use:     "files",
	Aliases: []string{"file"},
	Short:   "Manage bank files",
	Long: `List, upload and download files stored in BankShield.

Examples:
  # Most recent confidential files
  bankshield files list --sensitivity confidential

  # Upload a report
  bankshield files upload ./q3-report.pdf --type report --sensitivity confidential

  # Download a file, verifying its BLAKE3 digest afterwards
  bankshield files download 3 -o q3.pdf

  # Ask the assistant to find files
  bankshield files search "quarterly treasury"`,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bank files",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesGet,
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file",
	Long: `Upload a file. At a terminal, a missing --type or --sensitivity is asked
for; elsewhere they are sent empty and the server applies its defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilesUpload,
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a file",
	Long: `Download a file. Without --output the server's filename is used in the
current directory. The BLAKE3 digest of the received bytes is printed.

An existing file is only replaced with --force or after confirming at a
terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilesDownload,
}

var filesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find files with the AI assistant",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesSearch,
}

var filesLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show file access logs",
	Args:  cobra.NoArgs,
	RunE:  runFilesLogs,
}

func init() {
	lf := filesListCmd.Flags()
	lf.String("type", "", "file type")
	lf.String("sensitivity", "", "sensitivity level")
	lf.String("search", "", "free-text search")
	lf.Int("limit", 20, "maximum number of files")
	lf.String("sort", "-uploaded_at", "ordering field, prefix with - for descending")

	uf := filesUploadCmd.Flags()
	uf.String("name", "", "display name (default is the file's base name)")
	uf.String("type", "", "file type")
	uf.String("sensitivity", "", "sensitivity level")
	uf.String("description", "", "description")

	filesDownloadCmd.Flags().StringP("output", "O", "", "destination path")
	filesDownloadCmd.Flags().BoolP("force", "f", false, "replace an existing file")

	filesLogsCmd.Flags().String("file", "", "only logs for this file id")
	filesLogsCmd.Flags().String("action", "", "only this action (view, download, upload)")
	filesLogsCmd.Flags().Int("limit", 50, "maximum number of records")

	filesCmd.AddCommand(filesListCmd, filesGetCmd, filesUploadCmd, filesDownloadCmd, filesSearchCmd, filesLogsCmd)
	rootCmd.AddCommand(filesCmd)
}

func fileTable(files []api.BankFile, empty string) *ux.Table {
	t := &ux.Table{
		Headers: []string{"ID", "NAME", "TYPE", "SENSITIVITY", "SIZE", "UPLOADED"},
		Empty:   empty,
	}
	for _, f := range files {
		t.Append(f.ID.String(), f.Name, f.FileType, f.Sensitivity, formatSize(f.Size), formatTime(f.UploadedAt))
	}
	return t
}

func runFilesList(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	q := screens.FileQuery{}
	q.FileType, _ = f.GetString("type")
	q.Sensitivity, _ = f.GetString("sensitivity")
	q.Search, _ = f.GetString("search")
	q.Limit, _ = f.GetInt("limit")
	q.Sort, _ = f.GetString("sort")

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	page, err := s.Client.ListFiles(cmd.Context(), q.Filter())
	if err != nil {
		return err
	}
	return s.output(cmd, page, func() *ux.Table { return fileTable(page.Results, "No files.") })
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	file, err := s.Client.GetFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return s.output(cmd, file, func() *ux.Table {
		t := &ux.Table{}
		t.Append("ID:", file.ID.String())
		t.Append("Name:", file.Name)
		t.Append("Type:", file.FileType)
		t.Append("Sensitivity:", file.Sensitivity)
		t.Append("Size:", formatSize(file.Size))
		t.Append("Owner:", file.Owner)
		t.Append("Uploaded:", formatTime(file.UploadedAt))
		t.Append("Description:", file.Description)
		return t
	})
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	f := cmd.Flags()
	name, _ := f.GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}
	fileType, _ := f.GetString("type")
	sensitivity, _ := f.GetString("sensitivity")
	description, _ := f.GetString("description")

	if tui.ShouldPrompt() {
		var err error
		if fileType == "" {
			fileType, err = tui.PromptForString(tui.Prompt{
				Message:     "File type",
				Default:     strings.TrimPrefix(filepath.Ext(path), "."),
				Placeholder: "report, ledger, log...",
			})
			if err != nil {
				return err
			}
		}
		if sensitivity == "" {
			sensitivity, err = tui.PromptForSelect("Sensitivity", sensitivityLevels)
			if err != nil {
				return err
			}
		}
	}

	in, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed, "cannot open "+path, err)
	}
	defer in.Close()

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	file, err := s.Client.UploadFile(cmd.Context(), api.UploadRequest{
		Filename:    filepath.Base(path),
		Content:     in,
		Name:        name,
		FileType:    fileType,
		Sensitivity: sensitivity,
		Description: description,
	})
	if err != nil {
		return err
	}
	s.Broker.Success("File uploaded", fmt.Sprintf("%s stored as #%s", file.Name, file.ID))
	return s.output(cmd, file, func() *ux.Table { return fileTable([]api.BankFile{*file}, "") })
}

// downloadResult is the structured form of `files download`
type downloadResult struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	BLAKE3 string `json:"blake3" yaml:"blake3"`
}

func runFilesDownload(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	dir := "."
	if output != "" {
		dir = filepath.Dir(output)
	}
	tmp, err := os.CreateTemp(dir, ".bankshield-download-*")
	if err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileWriteFailed, "cannot write to "+dir, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	d, err := s.Client.DownloadFile(cmd.Context(), args[0], tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(errors.KindValidation, errors.ErrCodeFileWriteFailed, "failed to write download", closeErr)
	}
	if err != nil {
		return err
	}

	dest := output
	if dest == "" {
		dest = filepath.Base(d.Filename)
		if dest == "" || dest == "." || dest == string(filepath.Separator) {
			dest = "file-" + args[0]
		}
	}
	if !force {
		if err := confirmOverwrite(dest); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileWriteFailed, "cannot write "+dest, err)
	}

	result := downloadResult{Path: dest, Size: d.Size, BLAKE3: d.BLAKE3}
	return s.output(cmd, result, func() *ux.Table {
		t := &ux.Table{}
		t.Append("Saved:", dest)
		t.Append("Size:", formatSize(d.Size))
		t.Append("BLAKE3:", d.BLAKE3)
		return t
	})
}

// confirmOverwrite lets an existing dest be replaced only after the user agrees
func confirmOverwrite(dest string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return errors.NewValidation(dest + " is a directory").
			WithSuggestion("Pass a file path to --output")
	}

	exists := errors.NewValidation(dest + " already exists").
		WithSuggestion("Pass --force to replace it")
	if !tui.ShouldPrompt() {
		return exists
	}
	ok, err := tui.PromptForConfirmation(fmt.Sprintf("Replace %s?", dest), false)
	if err != nil {
		return err
	}
	if !ok {
		return exists
	}
	return nil
}

func runFilesSearch(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	files, err := s.Assistant.SearchFiles(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return s.output(cmd, files, func() *ux.Table { return fileTable(files, "No matching files.") })
}

func runFilesLogs(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	params := url.Values{}
	if v, _ := f.GetString("file"); v != "" {
		params.Set("file", v)
	}
	if v, _ := f.GetString("action"); v != "" {
		params.Set("action", v)
	}
	if v, _ := f.GetInt("limit"); v > 0 {
		params.Set("limit", strconv.Itoa(v))
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	page, err := s.Client.ListAccessLogs(cmd.Context(), params)
	if err != nil {
		return err
	}
	return s.output(cmd, page, func() *ux.Table {
		t := &ux.Table{
			Headers: []string{"TIME", "FILE", "USER", "ACTION", "IP"},
			Empty:   "No access records.",
		}
		for _, l := range page.Results {
			t.Append(formatTime(l.Timestamp), l.File.String(), l.User, l.Action, l.IPAddress)
		}
		return t
	})
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
