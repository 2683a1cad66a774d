package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/bulutsoft-dev/Transmind-PI/internal/capture"
	"github.com/bulutsoft-dev/Transmind-PI/internal/registry"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List registered devices",
		Long:  `Prints the device registry and marks the active device. With --local, lists the capture nodes of this machine instead.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			var err error
			if local {
				err = printCaptureDevices(cmd.OutOrStdout())
			} else {
				err = printRegistry(cmd.OutOrStdout(), opts)
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVar(&local, "local", false, "List local V4L2 capture nodes")
	return cmd
}

func printRegistry(out io.Writer, opts *Options) error {
	reg, err := registry.New(opts.RegistryFile, opts.RegistryActive)
	if err != nil {
		return err
	}

	active := reg.ActiveID()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tHOST\tSTREAM")
	for _, d := range reg.List() {
		marker := ""
		if d.ID == active {
			marker = "*"
		}
		stream := registry.StreamURL(d)
		if stream == "" {
			stream = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, d.ID, d.Name, d.Host, stream)
	}
	return tw.Flush()
}

func printCaptureDevices(out io.Writer) error {
	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tMJPEG\tFORMATS")
	for _, d := range devices {
		mjpeg := "no"
		switch {
		case d.Busy:
			mjpeg = "busy"
		case d.MJPEG:
			mjpeg = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, d.Name, mjpeg, strings.Join(d.Formats, ","))
	}
	return tw.Flush()
}
