// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// lmsg-audit checks dumps of legacy messages, one JSON object per line (the
// output of ssb-logcat or `sbotcli log`). Messages are validated in full,
// including per-feed chain continuity, and every failure is reported with
// its line number.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	cli "github.com/urfave/cli/v2"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	legacymsg "github.com/ssbc/go-legacymsg"
	"github.com/ssbc/go-legacymsg/value"
)

var log kitlog.Logger

func main() {
	log = kitlog.NewLogfmtLogger(os.Stderr)

	app := cli.App{
		Name:  "lmsg-audit",
		Usage: "validate newline-delimited legacy messages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hmac", Usage: "base64 signing capability of the network, if it has one"},
			&cli.BoolFlag{Name: "no-chain", Usage: "check messages in isolation, skip previous/sequence continuity"},
		},
		Action: audit,
	}

	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("event", "audit failed", "err", err)
		os.Exit(1)
	}
}

func audit(ctx *cli.Context) error {
	var hmacSecret *[32]byte
	if h := ctx.String("hmac"); h != "" {
		decoded, err := base64.StdEncoding.DecodeString(h)
		if err != nil {
			return fmt.Errorf("invalid hmac flag: %w", err)
		}
		if len(decoded) != 32 {
			return fmt.Errorf("invalid hmac flag: got %d bytes, want 32", len(decoded))
		}
		hmacSecret = new([32]byte)
		copy(hmacSecret[:], decoded)
	}

	input := io.Reader(os.Stdin)
	if fname := ctx.Args().First(); fname != "" {
		f, err := os.Open(fname)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	var (
		feeds      = make(map[string]*legacymsg.Previous)
		line       int
		okCount    int
		badCount   int
		totalBytes uint64
	)

	sc := bufio.NewScanner(input)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		totalBytes += uint64(len(raw))

		var (
			msg legacymsg.Message
			err error
		)
		if ctx.Bool("no-chain") {
			msg, err = legacymsg.Verify(raw, hmacSecret)
		} else {
			// peek at the author to find the feed state. A broken author
			// field falls through to Validate and gets reported there.
			author := peekAuthor(raw)
			msg, err = legacymsg.Validate(raw, feeds[author], hmacSecret)
			if err == nil {
				feeds[author] = &legacymsg.Previous{Key: msg.Key(), Sequence: msg.Seq()}
			}
		}

		if err != nil {
			badCount++
			level.Error(log).Log("line", line, "err", err)
			continue
		}
		okCount++
		level.Debug(log).Log("line", line, "key", msg.Key().String())
	}
	if err := sc.Err(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s messages ok, %s failed, %s read\n",
		humanize.Comma(int64(okCount)),
		humanize.Comma(int64(badCount)),
		humanize.Bytes(totalBytes))
	if badCount > 0 {
		return fmt.Errorf("%d invalid messages", badCount)
	}
	return nil
}

// peekAuthor pulls the author string out of a raw message without full
// validation, just enough to group lines into feeds.
func peekAuthor(raw []byte) string {
	obj, err := value.ParseObject(raw)
	if err != nil {
		return ""
	}
	author, _ := obj.Get("author")
	s, _ := author.(value.String)
	return string(s)
}
