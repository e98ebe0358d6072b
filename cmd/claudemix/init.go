package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/config"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/tmux"
)

var initForce bool

// gitignoreEntries keeps session data out of the repository.
var gitignoreEntries = []string{
	".claudemix/",
}

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Set up a repository for ClaudeMix",
	Long: `Prepare a git repository for ClaudeMix.

This command:
  - Verifies prerequisites (git, tmux, the agent command)
  - Writes a commented .claudemix.yaml with the defaults
  - Adds .claudemix/ (worktrees, state, logs) to .gitignore

Examples:
  claudemix init              # Set up the current repository
  claudemix init ./myproject  # Set up a specific repository
  claudemix init --force      # Overwrite an existing .claudemix.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .claudemix.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := repoDir
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	if err := checkGitInstalled(); err != nil {
		return err
	}
	repoPath, err := git.NewRunner(absPath).TopLevel(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s is not inside a git repository; run 'git init' first", absPath)
	}
	printStatus("✓", "git repository: "+repoPath, color.FgGreen)

	configPath := filepath.Join(repoPath, config.ProjectFileName)
	if _, err := os.Stat(configPath); err == nil && !initForce {
		printStatus("•", config.ProjectFileName+" already exists (use --force to overwrite)", color.FgCyan)
	} else {
		if err := config.WriteTemplate(configPath, true); err != nil {
			return fmt.Errorf("write %s: %w", config.ProjectFileName, err)
		}
		printStatus("✓", "wrote "+config.ProjectFileName, color.FgGreen)
	}

	if err := updateGitignore(repoPath); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}
	printStatus("✓", ".gitignore covers .claudemix/", color.FgGreen)

	cfg, err := config.Load(repoPath)
	if err != nil {
		return err
	}
	if tmux.NewClient(cfg.Persistence.Socket).Installed() {
		printStatus("✓", "tmux found; sessions survive detach", color.FgGreen)
	} else {
		printStatus("⚠", "tmux not found; sessions run in the foreground only", color.FgYellow)
	}
	if agent := cfg.Persistence.AgentCommand(); len(agent) > 0 {
		if _, err := exec.LookPath(agent[0]); err != nil {
			printStatus("⚠", agent[0]+" not found in PATH (persistence.command)", color.FgYellow)
		} else {
			printStatus("✓", "agent command: "+strings.Join(agent, " "), color.FgGreen)
		}
	}

	fmt.Println()
	fmt.Println("Start a session with: claudemix <name>")
	return nil
}

// checkGitInstalled checks if git is installed
func checkGitInstalled() error {
	_, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("git not found in PATH\n\n" +
			"ClaudeMix requires git to manage branches and worktrees.\n\n" +
			"Install git with:\n" +
			"  - macOS: brew install git\n" +
			"  - Ubuntu/Debian: sudo apt-get install git\n" +
			"  - Other: https://git-scm.com/downloads")
	}
	return nil
}

// updateGitignore adds ClaudeMix entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(existingContent, "\n") {
		present[strings.TrimSpace(line)] = true
	}
	var missing []string
	for _, entry := range gitignoreEntries {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# ClaudeMix\n")
	for _, entry := range missing {
		newContent.WriteString(entry + "\n")
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}
