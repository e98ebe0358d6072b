// Command claudemix runs concurrent Claude Code sessions against one
// repository, each in its own worktree, and merges them back through a
// per-branch merge queue.
package main

func main() {
	Execute()
}
