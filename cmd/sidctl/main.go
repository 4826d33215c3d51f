// Command sidctl is the client for sid's unix socket protocol (spec.md
// §6.5): VERSION, DBDUMP, DBSTATS, DEVICES and RESOURCES each connect,
// send one framed request, print the response, and exit.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sidproject/sid/internal/config"
	"github.com/sidproject/sid/internal/wire"
)

func main() {
	app := &cli.App{
		Name:  "sidctl",
		Usage: "query and control the sid daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Usage: "unix socket path", Value: config.Default().SocketPath},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "table|json|env", Value: "table"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose output"},
		},
		Commands: []*cli.Command{
			cmdFor(wire.CmdVersion, "version", "print the daemon version"),
			cmdFor(wire.CmdDBDump, "dbdump", "dump the authoritative store"),
			cmdFor(wire.CmdDBStats, "dbstats", "print store record counts"),
			cmdFor(wire.CmdDevices, "devices", "list known devices"),
			cmdFor(wire.CmdResources, "resources", "dump the resource tree"),
			{
				Name:  "checkpoint",
				Usage: "force a snapshot write",
				Action: func(c *cli.Context) error {
					return runRequest(c, wire.CmdCheckpoint, nil)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sidctl:", err)
		os.Exit(1)
	}
}

func cmdFor(cmd wire.Cmd, name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			return runRequest(c, cmd, nil)
		},
	}
}

// runRequest sends one framed request for cmd and prints the response
// body, trimming the 12-byte header sidctl itself doesn't render.
func runRequest(c *cli.Context, cmd wire.Cmd, body []byte) error {
	conn, err := net.Dial("unix", c.String("socket"))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	format := wire.ParseFormat(c.String("format"))
	header := wire.EncodeHeader(wire.Header{Prot: wire.ProtocolVersion, Cmd: cmd, Flags: uint16(format)})
	if err := wire.WriteFrame(conn, append(header, body...)); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	respHeader, err := wire.DecodeHeader(payload)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if respHeader.Status != wire.StatusSuccess {
		return fmt.Errorf("daemon reported failure for %s", cmd)
	}

	os.Stdout.Write(payload[12:])
	return nil
}
