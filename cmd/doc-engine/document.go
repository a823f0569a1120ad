// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// readDocument reads a Markdown document from path, or from stdin when
// path is "-".
func readDocument(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return string(data), nil
}

// writeDocument writes the document to path, or to stdout when path is
// empty or "-". Stdout output honors the command's --render flag; file
// output never does, so redirected documents stay plain Markdown.
func writeDocument(cmd *cobra.Command, path, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if path != "" && path != "-" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", path, len(content))
		return nil
	}
	if render, _ := cmd.Flags().GetBool("render"); render {
		if out, err := renderMarkdown(content); err == nil {
			fmt.Print(out)
			return nil
		}
	}
	fmt.Print(content)
	return nil
}

// renderMarkdown formats Markdown for terminal display.
func renderMarkdown(text string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// progressWriter returns the destination for run progress: stderr under
// --verbose, discarded otherwise.
func progressWriter(cmd *cobra.Command) io.Writer {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return os.Stderr
	}
	return io.Discard
}
