// Command scripts cross-compiles eightled for the Pi and cuts GitHub
// releases.
package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const distDir = "dist"

type target struct {
	goos   string
	goarch string
	goarm  string
}

// targets covers the 32-bit Pi OS images (ARMv6 runs on every model) and
// the 64-bit ones.
var targets = []target{
	{goos: "linux", goarch: "arm", goarm: "6"},
	{goos: "linux", goarch: "arm64"},
}

func (t target) String() string {
	if t.goarm != "" {
		return fmt.Sprintf("%s_%sv%s", t.goos, t.goarch, t.goarm)
	}
	return t.goos + "_" + t.goarch
}

func ldflags(version string, buildTime int64, commit string) string {
	return fmt.Sprintf("-X main.version=%s -X main.buildUnixTimestamp=%d -X main.commitHash=%s", version, buildTime, commit)
}

func archiveName(version string, t target) string {
	return fmt.Sprintf("eightled_%s_%s.tgz", version, t)
}

func git(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func run(name string, env []string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// build compiles one target into dist/ and packs it with the service
// file. It returns the archive path.
func build(version string, t target) (string, error) {
	commit, err := git("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}

	binary := filepath.Join(distDir, t.String(), "eightled")
	env := []string{"CGO_ENABLED=0", "GOOS=" + t.goos, "GOARCH=" + t.goarch}
	if t.goarm != "" {
		env = append(env, "GOARM="+t.goarm)
	}

	log.Info().Str("target", t.String()).Str("version", version).Msg("Building")
	if err := run("go", env, "build", "-trimpath",
		"-ldflags", ldflags(version, time.Now().Unix(), commit),
		"-o", binary, ".",
	); err != nil {
		return "", fmt.Errorf("build %s: %w", t, err)
	}

	archive := filepath.Join(distDir, archiveName(version, t))
	if err := writeArchive(archive, binary, "eightled.service"); err != nil {
		return "", err
	}
	return archive, nil
}

func writeArchive(path string, files ...string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, name := range files {
		if err := addFile(tw, name); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFile(tw *tar.Writer, name string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(name)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

func buildAll(version string) ([]string, error) {
	if err := os.MkdirAll(distDir, 0755); err != nil {
		return nil, err
	}

	var archives []string
	for _, t := range targets {
		archive, err := build(version, t)
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}
	return archives, nil
}

func main() {
	root := &cobra.Command{
		Use:          "scripts",
		Short:        "eightled build and release helpers",
		SilenceUsage: true,
	}

	buildCmd := &cobra.Command{
		Use:   "build [version]",
		Short: "Cross-compile and package every target into dist/",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := "dev"
			if len(args) == 1 {
				version = args[0]
			}
			archives, err := buildAll(version)
			for _, a := range archives {
				fmt.Println(a)
			}
			return err
		},
	}

	releaseCmd := &cobra.Command{
		Use:   "release <major|minor|patch|vX.Y.Z>",
		Short: "Build every target and publish a GitHub release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := git("describe", "--abbrev=0")
			if err != nil {
				return err
			}
			currentVersion, err := ParseSemVer(current)
			if err != nil {
				return err
			}
			next, err := currentVersion.Bump(args[0])
			if err != nil {
				return err
			}
			log.Info().Str("current", current).Str("new", next.String()).Msg("Cutting new release")

			archives, err := buildAll(next.String())
			if err != nil {
				return err
			}

			ghArgs := append([]string{"release", "create", next.String(), "--generate-notes"}, archives...)
			return run("gh", nil, ghArgs...)
		},
	}

	root.AddCommand(buildCmd, releaseCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
