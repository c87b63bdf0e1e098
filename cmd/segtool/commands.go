package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cocosip/go-dicom-seg/config"
	"github.com/cocosip/go-dicom-seg/dcmio"
	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/preview"
	"github.com/cocosip/go-dicom-seg/seg"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// common holds the flags every decoding command shares
type common struct {
	flags      *flag.FlagSet
	configPath string
	segPath    string
	logLevel   string
}

func newCommon(name string) *common {
	c := &common{flags: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.flags.StringVar(&c.configPath, "config", "segtool.yaml", "configuration file")
	c.flags.StringVar(&c.segPath, "seg", "", "segmentation file")
	c.flags.StringVar(&c.logLevel, "log", "", "log level, overrides the configuration")
	return c
}

// setup parses args and loads the configuration and logger
func (c *common) setup(args []string) (*config.Config, zerolog.Logger, error) {
	if err := c.flags.Parse(args); err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// decode reads the segmentation and the reference images named by the
// remaining arguments and decodes the labelmap
func (c *common) decode(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*seg.FrameSet, geometry.Stack, *seg.Labelmap, error) {
	if c.segPath == "" {
		return nil, nil, nil, errors.New("-seg is required")
	}
	if c.flags.NArg() == 0 {
		return nil, nil, nil, errors.New("no reference images given")
	}

	fs, err := dcmio.ReadSegmentationFile(c.segPath)
	if err != nil {
		return nil, nil, nil, err
	}
	stack, err := dcmio.LoadStack(c.flags.Args(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	lm, err := seg.Decode(ctx, fs, stack, cfg.DecodeOptions(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return fs, stack, lm, nil
}

func runDecode(ctx context.Context, args []string) error {
	c := newCommon("decode")
	cfg, logger, err := c.setup(args)
	if err != nil {
		return err
	}
	_, stack, lm, err := c.decode(ctx, cfg, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "images\t%d\nlayers\t%d\noverlapping\t%v\nskipped frames\t%d\n\n",
		len(stack), len(lm.Layers), lm.Overlapping, len(lm.Skipped))
	fmt.Fprintln(w, "SEGMENT\tLABEL\tLAYER\tIMAGES\tVOXELS\tCENTROID (mm)")
	for _, s := range lm.Segments {
		ct := lm.Centroids[s.Number]
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t(%.2f, %.2f, %.2f)\n", s.Number, s.Label,
			lm.SegmentLayer[s.Number], len(s.Contributions), ct.Count, ct.World.X, ct.World.Y, ct.World.Z)
	}
	for _, fe := range lm.Skipped {
		fmt.Fprintf(w, "skipped frame %d\t%v\n", fe.Frame, fe.Err)
	}
	return w.Flush()
}

func runEncode(ctx context.Context, args []string) error {
	c := newCommon("encode")
	out := c.flags.String("out", "", "output segmentation file")
	rle := c.flags.Bool("rle", false, "store frames RLE compressed")
	cfg, logger, err := c.setup(args)
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.New("-out is required")
	}
	if *rle {
		cfg.Encode.RLE = true
	}

	src, stack, lm, err := c.decode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fs, err := seg.Encode(&seg.EncodeInput{
		Frames:   seg.FramesFromLayers(lm),
		Segments: lm.Segments,
		Stack:    stack,
	}, cfg.EncodeOptions(logger))
	if err != nil {
		return err
	}
	fs.CopyPatientStudy(src)

	if err := dcmio.WriteSegmentationFile(*out, fs); err != nil {
		return err
	}
	logger.Info().Str("path", *out).Int("frames", fs.NumberOfFrames).
		Str("transfer_syntax", fs.TransferSyntaxUID).Msg("wrote segmentation")
	return nil
}

func runPreview(ctx context.Context, args []string) error {
	c := newCommon("preview")
	out := c.flags.String("out", "slice.png", "output image")
	image := c.flags.Int("image", 0, "reference stack index to render")
	scale := c.flags.Int("scale", 4, "magnification")
	background := c.flags.String("background", "", "image drawn under the overlay")
	opacity := c.flags.Float64("opacity", 0.5, "overlay opacity over the background")
	cfg, logger, err := c.setup(args)
	if err != nil {
		return err
	}
	opts := preview.DefaultOptions().WithScale(*scale)
	if *background != "" {
		bg, err := imaging.Open(*background)
		if err != nil {
			return err
		}
		opts.WithBackground(bg, *opacity)
	}

	_, _, lm, err := c.decode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	img, err := preview.Slice(lm, *image, opts)
	if err != nil {
		return err
	}
	if err := preview.Save(*out, img); err != nil {
		return err
	}
	logger.Info().Str("path", *out).Int("image", *image).Ints("segments", lm.SegmentsOnImage[*image]).
		Msg("wrote preview")
	return nil
}

func runConfig(_ context.Context, args []string) error {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)
	out := flags.String("out", "segtool.yaml", "configuration file to write")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := config.SaveConfig(config.DefaultConfig(), *out); err != nil {
		return err
	}
	fmt.Println(*out)
	return nil
}
