// Command blockfsctl is a CLI for a blockfs volume: put, get,
// ls, rm, stat, and fsck subcommands over urfave/cli/v2, with rodaine/table
// for the tabular ls/fsck output.
package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/nrosa/blockfs/blockfs"
	"github.com/nrosa/blockfs/disk"
	"github.com/nrosa/blockfs/filetable"
	"github.com/nrosa/blockfs/internal/config"
)

func main() {
	app := &cli.App{
		Name:        "blockfsctl",
		Usage:       "inspect and manipulate a blockfs volume",
		Description: "blockfsctl opens an existing blockfs disk image and exposes its files through a small set of subcommands.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "optional blockfs.yaml manifest to load defaults from"},
			&cli.StringFlag{Name: "disk", Aliases: []string{"d"}, Usage: "path to the disk image to open"},
		},
		Commands: []*cli.Command{
			{Name: "ls", Usage: "list files on the volume", Action: withVolume(cmdLs)},
			{Name: "put", Usage: "copy a local file onto the volume", ArgsUsage: "LOCAL REMOTE", Action: withVolume(cmdPut)},
			{Name: "get", Usage: "copy a file off the volume", ArgsUsage: "REMOTE LOCAL", Action: withVolume(cmdGet)},
			{Name: "rm", Usage: "delete a file from the volume", ArgsUsage: "REMOTE", Action: withVolume(cmdRm)},
			{Name: "stat", Usage: "report a file's size", ArgsUsage: "REMOTE", Action: withVolume(cmdStat)},
			{Name: "fsck", Usage: "walk the directory and report any unreadable inode", Action: withVolume(cmdFsck)},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "blockfsctl:", err)
		os.Exit(1)
	}
}

func withVolume(fn func(*cli.Context, *blockfs.FileSystem) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("manifest"))
		if err != nil {
			return err
		}
		if c.String("disk") != "" {
			cfg.DiskPath = c.String("disk")
		}
		if cfg.DiskPath == "" {
			return fmt.Errorf("no disk image specified (use --disk or BLOCKFS_DISK_PATH)")
		}

		dev, err := disk.OpenFileDisk(cfg.DiskPath, cfg.BlockCount)
		if err != nil {
			return fmt.Errorf("opening disk image: %w", err)
		}
		defer dev.Close()

		fs, err := blockfs.Mount(dev, cfg.InodeBlocks)
		if err != nil {
			return fmt.Errorf("mounting volume: %w", err)
		}

		if err := fn(c, fs); err != nil {
			return err
		}
		return fs.Sync()
	}
}

func cmdLs(c *cli.Context, fs *blockfs.FileSystem) error {
	tbl := table.New("inumber", "name", "size")
	for _, entry := range fs.List() {
		size, err := fs.Stat(entry.Name)
		if err != nil {
			return err
		}
		tbl.AddRow(entry.Inumber, entry.Name, size)
	}
	tbl.WithWriter(os.Stdout).Print()
	return nil
}

func cmdPut(c *cli.Context, fs *blockfs.FileSystem) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: blockfsctl put LOCAL REMOTE")
	}
	data, err := ioutil.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}

	entry, err := fs.Open(c.Args().Get(1), filetable.ModeWrite)
	if err != nil {
		return err
	}
	if _, err := fs.Write(entry, data); err != nil {
		fs.Close(entry)
		return err
	}
	return fs.Close(entry)
}

func cmdGet(c *cli.Context, fs *blockfs.FileSystem) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: blockfsctl get REMOTE LOCAL")
	}

	entry, err := fs.Open(c.Args().Get(0), filetable.ModeRead)
	if err != nil {
		return err
	}
	defer fs.Close(entry)

	buf := make([]byte, fs.Fsize(entry))
	n, err := fs.Read(entry, buf)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(c.Args().Get(1), buf[:n], 0644)
}

func cmdRm(c *cli.Context, fs *blockfs.FileSystem) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: blockfsctl rm REMOTE")
	}
	if !fs.Delete(c.Args().Get(0)) {
		return fmt.Errorf("no such file: %s", c.Args().Get(0))
	}
	return nil
}

func cmdStat(c *cli.Context, fs *blockfs.FileSystem) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: blockfsctl stat REMOTE")
	}
	size, err := fs.Stat(c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes\n", c.Args().Get(0), size)
	return nil
}

func cmdFsck(c *cli.Context, fs *blockfs.FileSystem) error {
	tbl := table.New("inumber", "name", "length", "status")
	for _, r := range fs.Fsck() {
		status := "ok"
		if r.Broken {
			status = r.Detail
		}
		tbl.AddRow(r.Inumber, r.Name, r.Length, status)
	}
	tbl.WithWriter(os.Stdout).Print()
	return nil
}
