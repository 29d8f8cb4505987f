package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/emmett/chime/internal/app"
	grpcserver "github.com/emmett/chime/internal/server/grpc"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	remoteAddr  string
	watchKinds  []string
	devicesName string
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dm := app.NewDeviceManager(os.Stdout)
		if devicesName != "" {
			dev, err := dm.SelectDevice(devicesName)
			if err != nil {
				return err
			}
			fmt.Println(dev.String())
			return nil
		}
		return dm.ListDevices()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running chime server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := grpcserver.Dial(serverAddr())
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		return printStruct(st)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream detector events from a running chime server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := grpcserver.Dial(serverAddr())
		if err != nil {
			return err
		}
		defer client.Close()

		err = client.Watch(ctx, printStruct, watchKinds...)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	devicesCmd.Flags().StringVar(&devicesName, "find", "", "show the device a name or ID resolves to")

	for _, cmd := range []*cobra.Command{statusCmd, watchCmd} {
		cmd.Flags().StringVar(&remoteAddr, "addr", "", "server address (default: from config)")
	}
	watchCmd.Flags().StringSliceVar(&watchKinds, "kinds", nil, "event kinds to stream (default: all)")

	rootCmd.AddCommand(devicesCmd, statusCmd, watchCmd)
}

func serverAddr() string {
	if remoteAddr != "" {
		return remoteAddr
	}
	return cfg.GRPCAddr()
}

func printStruct(s *structpb.Struct) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
