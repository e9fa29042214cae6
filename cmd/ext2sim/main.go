package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/format"
	"github.com/dmfabritius/ext2sim/shell"
)

func main() {
	defer recoverFatal()

	app := cli.App{
		Usage: "Simulate an ext2 filesystem backed by a disk image file",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create a fresh, empty disk image",
				Action:    formatImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "preset",
						Usage: fmt.Sprintf("disk geometry preset (%v)", format.PresetSlugs()),
						Value: "default",
					},
				},
			},
			{
				Name:      "shell",
				Usage:     "Mount a disk image and start an interactive session",
				Action:    runShell,
				ArgsUsage: "IMAGE_FILE",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// recoverFatal turns an ext2err.FatalError panic, raised when the
// simulator's fixed-size inode cache is exhausted or a bitmap has no free
// bit left, into a clean non-zero exit instead of an unhandled panic.
func recoverFatal() {
	r := recover()
	if r == nil {
		return
	}
	if fatal, ok := r.(ext2err.FatalError); ok {
		fmt.Fprintf(os.Stderr, "fatal: %s\n", fatal.Error())
		os.Exit(2)
	}
	panic(r)
}

func formatImage(c *cli.Context) error {
	imagePath := c.Args().First()
	if imagePath == "" {
		return ext2err.ErrInvalidArgument.WithMessage("an image file path is required")
	}

	preset, err := format.GetPreset(c.String("preset"))
	if err != nil {
		return err
	}

	f, err := os.Create(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := format.FormatImage(f, preset); err != nil {
		return err
	}

	fmt.Printf("formatted %s: %d blocks, %d inodes\n", imagePath, preset.TotalBlocks, preset.TotalInodes)
	return nil
}

func runShell(c *cli.Context) error {
	imagePath := c.Args().First()
	if imagePath == "" {
		return ext2err.ErrInvalidArgument.WithMessage("an image file path is required")
	}

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	totalBlocks := blockio.BlockNum(info.Size() / blockio.BlockSize)

	fs := ext2sim.NewFileSystem()
	if _, err := fs.Mount(f, totalBlocks, imagePath, "/"); err != nil {
		return err
	}

	proc := ext2sim.NewProcess(fs, 1, ext2sim.SuperUser, ext2sim.SuperUser, ext2sim.NewOpenFileTable())
	return shell.New(fs, proc, os.Stdin, os.Stdout).Run()
}
