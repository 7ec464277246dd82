package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/wallnav/internal/visualiser"
)

// errWatchDone stops the stream once --count snapshots were printed.
var errWatchDone = errors.New("watch count reached")

func newWatchCmd() *cobra.Command {
	var (
		addr  string
		count int
		once  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the status stream of a running navigator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := visualiser.Dial(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			emit := func(msg *structpb.Struct) error {
				b, err := protojson.Marshal(msg)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			}

			if once {
				msg, err := client.Status(ctx)
				if err != nil {
					return err
				}
				return emit(msg)
			}

			n := 0
			err = client.Watch(ctx, func(msg *structpb.Struct) error {
				if err := emit(msg); err != nil {
					return err
				}
				n++
				if count > 0 && n >= count {
					return errWatchDone
				}
				return nil
			})
			if errors.Is(err, errWatchDone) || status.Code(err) == codes.Canceled {
				return nil
			}
			return ignoreShutdown(err)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", "localhost:50051", "address of wallnav run --grpc-listen")
	fl.IntVar(&count, "count", 0, "stop after this many snapshots (0 streams until interrupted)")
	fl.BoolVar(&once, "once", false, "print a single snapshot and exit")
	return cmd
}
