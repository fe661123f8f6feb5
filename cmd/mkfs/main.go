// Command mkfs formats a blockfs disk image, using urfave/cli/v2 for its
// flags.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nrosa/blockfs/blockfs"
	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/internal/config"
)

func main() {
	app := &cli.App{
		Name:        "mkfs",
		Usage:       "format a blockfs disk image",
		Description: "mkfs lays out a fresh blockfs superblock, inode table, and empty root directory on a disk image file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "optional blockfs.yaml manifest to load defaults from"},
			&cli.StringFlag{Name: "disk", Aliases: []string{"d"}, Usage: "path to the disk image to create or overwrite"},
			&cli.IntFlag{Name: "blocks", Aliases: []string{"b"}, Usage: "total number of blocks on the volume"},
			&cli.IntFlag{Name: "inode-blocks", Aliases: []string{"i"}, Usage: "number of blocks reserved for the inode table"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mkfs:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("manifest"))
	if err != nil {
		return err
	}
	if c.String("disk") != "" {
		cfg.DiskPath = c.String("disk")
	}
	if c.Int("blocks") != 0 {
		cfg.BlockCount = c.Int("blocks")
	}
	if c.Int("inode-blocks") != 0 {
		cfg.InodeBlocks = c.Int("inode-blocks")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dev, err := disk.OpenFileDisk(cfg.DiskPath, cfg.BlockCount)
	if err != nil {
		return fmt.Errorf("opening disk image: %w", err)
	}
	defer dev.Close()

	if _, err := blockfs.Format(dev, cfg.InodeBlocks); err != nil {
		return fmt.Errorf("formatting: %w", err)
	}

	fmt.Printf("formatted %s: %d blocks, %d inode blocks\n", cfg.DiskPath, cfg.BlockCount, cfg.InodeBlocks)
	return nil
}
