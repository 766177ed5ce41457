package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/configs"
	"github.com/casheiro/synapstor-go/internal/config"
	"github.com/casheiro/synapstor-go/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		path  string
		user  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		Long: `Write a commented .synapstor.yaml template into the project root.

Every setting ships commented out with its default, so the generated
file changes nothing until lines are uncommented. An existing config
file is never overwritten unless --force is given.

With --user the machine-level template is written to the user config
path instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user {
				return runInitUser(cmd, force)
			}
			return runInitProject(cmd, path, force)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Project directory")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInitProject(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", abs)
	}

	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}

	yamlPath := filepath.Join(root, config.ProjectConfigName)
	if !force {
		if existing, ok := existingProjectConfig(root); ok {
			out.Statusf("ℹ️ ", "Existing %s preserved; use --force to overwrite", filepath.Base(existing))
			return nil
		}
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", yamlPath, err)
	}
	out.Statusf("📝", "Created %s", yamlPath)

	added, err := ensureDataDirIgnored(root)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Statusf("📝", "Added .synapstor/ to .gitignore")
	}

	return nil
}

func runInitUser(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		out.Statusf("ℹ️ ", "Existing %s preserved; use --force to overwrite", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	out.Statusf("📝", "Created %s", path)

	return nil
}

// existingProjectConfig reports whichever config file the root already
// carries. Both extensions count; user customizations are never lost.
func existingProjectConfig(root string) (string, bool) {
	for _, name := range []string{config.ProjectConfigName, config.ProjectConfigNameAlt} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// ensureDataDirIgnored appends the project-local data directory to
// .gitignore, preserving the file's line endings. Returns true when an
// entry was added.
func ensureDataDirIgnored(root string) (bool, error) {
	path := filepath.Join(root, ".gitignore")

	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if hasIgnoreEntry(string(content), ".synapstor") {
		return false, nil
	}

	eol := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		eol = "\r\n"
	}
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(eol)...)
	}

	entry := "# Synapstor index data" + eol + ".synapstor/" + eol
	if len(content) > 0 {
		entry = eol + entry
	}
	content = append(content, []byte(entry)...)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// hasIgnoreEntry matches the directory against the spellings git
// treats the same way.
func hasIgnoreEntry(content, name string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch line {
		case name, name + "/", "/" + name, "/" + name + "/":
			return true
		}
	}
	return false
}
