//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pgdbg/pgdbg/cmd/pgdbg/cmds"
	"github.com/pgdbg/pgdbg/cmd/pgdbg/cmds/helphelpers"
	"github.com/spf13/cobra/doc"
)

const defaultUsageDir = "./Documentation/usage"

func main() {
	usageDir := defaultUsageDir
	if len(os.Args) > 1 {
		usageDir = os.Args[1]
	}
	if err := os.MkdirAll(usageDir, 0o755); err != nil {
		log.Fatalf("creating %s: %v", usageDir, err)
	}
	root := cmds.New(true)

	cmdnames := []string{}
	for _, subcmd := range root.Commands() {
		cmdnames = append(cmdnames, subcmd.Name())
	}
	helphelpers.Prepare(root)
	if err := doc.GenMarkdownTree(root, usageDir); err != nil {
		log.Fatal(err)
	}
	// GenMarkdownTree ignores additional help topic commands, so we have to do this manually
	for _, cmdname := range cmdnames {
		cmd, _, _ := cmds.New(true).Find([]string{cmdname})
		helphelpers.Prepare(cmd)
		if err := doc.GenMarkdownTree(cmd, usageDir); err != nil {
			log.Fatal(err)
		}
	}
	fh, err := os.OpenFile(filepath.Join(usageDir, "pgdbg.md"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		log.Fatalf("appending to pgdbg.md: %v", err)
	}
	defer fh.Close()
	fmt.Fprintln(fh, "* [pgdbg log](pgdbg_log.md)\t - Help about logging flags")
}
