// Command tablectl sends a single request to a tablekeeper socket server and
// prints the response.
//
//	tablectl join  <room> <client>
//	tablectl ack   <join_id> <member>
//	tablectl list  <room>
//	tablectl leave <room> <client>
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/tablekeeper/internal/adapters/wire"
	"github.com/dkeye/tablekeeper/internal/app"
)

var errUsage = errors.New("usage: tablectl [--addr host:port] join|ack|list|leave args...")

func buildRequest(args []string) (app.Request, error) {
	if len(args) == 0 {
		return app.Request{}, errUsage
	}
	need := map[string]int{"join": 3, "ack": 3, "list": 2, "leave": 3}
	n, ok := need[args[0]]
	if !ok || len(args) != n {
		return app.Request{}, errUsage
	}
	switch args[0] {
	case "join":
		return app.Request{Command: app.CmdJoin, RoomID: args[1], ClientID: args[2]}, nil
	case "ack":
		return app.Request{Command: app.CmdJoinAck, JoinID: args[1], MemberID: args[2]}, nil
	case "list":
		return app.Request{Command: app.CmdList, RoomID: args[1]}, nil
	default:
		return app.Request{Command: app.CmdLeave, RoomID: args[1], ClientID: args[2]}, nil
	}
}

func send(addr string, timeout time.Duration, req app.Request) (app.Response, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return app.Response{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := wire.NewWriter(conn).Write(req); err != nil {
		return app.Response{}, err
	}
	var resp app.Response
	if err := wire.NewReader(conn, 0).Read(&resp); err != nil {
		return app.Response{}, err
	}
	return resp, nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fs := pflag.NewFlagSet("tablectl", pflag.ExitOnError)
	addr := fs.String("addr", "localhost:8080", "server address")
	timeout := fs.Duration("timeout", 5*time.Second, "dial and round-trip timeout")
	_ = fs.Parse(os.Args[1:])

	req, err := buildRequest(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	resp, err := send(*addr, *timeout, req)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("request failed")
	}
	out, err := wire.Marshal(resp)
	if err != nil {
		log.Fatal().Err(err).Msg("encode response")
	}
	fmt.Println(string(out))
	if resp.Status == app.StatusError {
		os.Exit(1)
	}
}
