// Command mediaconv is the CLI companion to mediaconvd: it calls the same
// converters directly, without going through HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/config"
	"github.com/ah-its-andy/mediaconv/internal/convert"
	"github.com/ah-its-andy/mediaconv/internal/engine"
)

const usage = `usage: mediaconv <command> [flags] [args]

commands:
  convert        convert INPUT OUTPUT to the format of OUTPUT's extension
  extract-audio  extract the audio track of a video INPUT into OUTPUT
  resize         resize an image INPUT into OUTPUT
  info           print probed metadata for INPUT
  formats        list the format catalog
  check          verify the media engine and configuration
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "extract-audio":
		err = runExtractAudio(os.Args[2:])
	case "resize":
		err = runResize(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "formats":
		err = runFormats()
	case "check":
		err = runCheck()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the engine with a quiet logger; CLI output
// goes to stdout, diagnostics only on error.
func setup() (*config.Config, *engine.Engine, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := zap.NewNop()
	eng := engine.New(cfg.FFmpegPath, cfg.FFProbePath, cfg.MaxConversions, logger)
	return cfg, eng, logger, nil
}

// destPaths satisfies convert.Paths with a fixed, caller-chosen output
// path instead of a generated one under the converted root.
type destPaths struct {
	path string
}

func (d destPaths) AllocateOutputPath(string) (string, error) {
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return d.path, nil
}

func (d destPaths) MarkBusy(string) {}
func (d destPaths) Done(string)    {}
func (d destPaths) Discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: could not remove partial output:", err)
	}
}

func runConvert(args []string) error {
	fl := flag.NewFlagSet("convert", flag.ExitOnError)
	quality := fl.String("quality", "medium", "quality preset: low, medium or high")
	bitrate := fl.String("bitrate", "", "audio bitrate override, e.g. 256k")
	fl.Parse(args)
	if fl.NArg() != 2 {
		return errors.New("convert needs INPUT and OUTPUT arguments")
	}
	input, output := fl.Arg(0), fl.Arg(1)

	cfg, eng, logger, err := setup()
	if err != nil {
		return err
	}
	q, err := convert.ParseQuality(*quality)
	if err != nil {
		return err
	}

	srcExt := catalog.ExtOf(input)
	cat, ok := catalog.CategoryFor(srcExt)
	if !ok {
		return fmt.Errorf("unsupported input type: %q", srcExt)
	}
	target := catalog.ExtOf(output)
	if _, ok := catalog.OutputCategory(target); !ok {
		return fmt.Errorf("unsupported output type: %q", target)
	}

	converters := convert.NewSet(eng, destPaths{path: output}, cfg.ConvertTimeout, logger)
	res, err := converters[cat].Convert(context.Background(), convert.Request{
		SourcePath:   input,
		SourceExt:    srcExt,
		TargetFormat: target,
		Quality:      q,
		Bitrate:      *bitrate,
	})
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func runExtractAudio(args []string) error {
	fl := flag.NewFlagSet("extract-audio", flag.ExitOnError)
	quality := fl.String("quality", "medium", "quality preset: low, medium or high")
	fl.Parse(args)
	if fl.NArg() != 2 {
		return errors.New("extract-audio needs INPUT and OUTPUT arguments")
	}
	input, output := fl.Arg(0), fl.Arg(1)

	cfg, eng, logger, err := setup()
	if err != nil {
		return err
	}
	q, err := convert.ParseQuality(*quality)
	if err != nil {
		return err
	}

	srcExt := catalog.ExtOf(input)
	if cat, ok := catalog.CategoryFor(srcExt); !ok || cat != catalog.Video {
		return fmt.Errorf("input is not a video: %q", srcExt)
	}
	target := catalog.ExtOf(output)
	if !catalog.ValidTarget(catalog.Audio, target) {
		return fmt.Errorf("output is not an audio format: %q", target)
	}

	converters := convert.NewSet(eng, destPaths{path: output}, cfg.ConvertTimeout, logger)
	res, err := converters[catalog.Video].Convert(context.Background(), convert.Request{
		SourcePath:   input,
		SourceExt:    srcExt,
		TargetFormat: target,
		Quality:      q,
	})
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func runResize(args []string) error {
	fl := flag.NewFlagSet("resize", flag.ExitOnError)
	width := fl.Int("width", 0, "target width in pixels")
	height := fl.Int("height", 0, "target height in pixels")
	fl.Parse(args)
	if fl.NArg() != 2 {
		return errors.New("resize needs INPUT and OUTPUT arguments")
	}
	if *width <= 0 && *height <= 0 {
		return errors.New("specify -width, -height or both")
	}
	input, output := fl.Arg(0), fl.Arg(1)

	cfg, eng, logger, err := setup()
	if err != nil {
		return err
	}

	srcExt := catalog.ExtOf(input)
	if cat, ok := catalog.CategoryFor(srcExt); !ok || cat != catalog.Image {
		return fmt.Errorf("input is not an image: %q", srcExt)
	}
	target := catalog.ExtOf(output)
	if target == "" {
		target = srcExt
	}

	converters := convert.NewSet(eng, destPaths{path: output}, cfg.ConvertTimeout, logger)
	res, err := converters[catalog.Image].Convert(context.Background(), convert.Request{
		SourcePath:   input,
		SourceExt:    srcExt,
		TargetFormat: target,
		Quality:      convert.QualityMedium,
		Width:        *width,
		Height:       *height,
	})
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return errors.New("info needs an INPUT argument")
	}
	_, eng, _, err := setup()
	if err != nil {
		return err
	}
	info, err := eng.ProbeFile(context.Background(), args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runFormats() error {
	for name, set := range catalog.Snapshot() {
		fmt.Printf("%s:\n", name)
		fmt.Printf("  input:  %s\n", strings.Join(set.Input, ", "))
		fmt.Printf("  output: %s\n", strings.Join(set.Output, ", "))
	}
	return nil
}

func runCheck() error {
	cfg, eng, _, err := setup()
	if err != nil {
		return err
	}
	info, err := eng.Probe(context.Background())
	if err != nil {
		return fmt.Errorf("media engine check failed: %w", err)
	}
	fmt.Println("engine:", info.Version)

	for _, dir := range []string{cfg.UploadDir, cfg.ConvertedDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("directory %s not usable: %w", dir, err)
		}
		fmt.Println("directory ok:", dir)
	}
	fmt.Println("check passed")
	return nil
}

func printResult(res convert.Result) {
	fmt.Println("output:", res.OutputPath)
	fmt.Printf("input size: %d bytes, output size: %d bytes, took %s\n",
		res.InputSize, res.OutputSize, res.Duration)
}
