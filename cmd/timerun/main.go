// Command timerun lets a simulated clock advance: it sends a single RUN
// message to a running timeserver, either for a fixed number of simulated
// seconds or until the next sleep/wakeup event.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sgerwk/timeserver/clicommand"
	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/urfave/cli"
)

const description = `timerun [seconds|sleep|wake]

Advances the simulated clock of a running timeserver.

    timerun 20       run 20 seconds of simulated time
    timerun sleep     run until the next client goes to sleep or unregisters
    timerun wake      run until just after the next client wakes up
    timerun           same as "timerun sleep"`

func main() {
	app := cli.NewApp()
	app.Name = "timerun"
	app.Usage = "advance a timeserver's simulated clock"
	app.Description = description
	app.Flags = []cli.Flag{
		clicommand.SocketFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	seconds, err := parseArg(c.Args().First())
	if err != nil {
		return err
	}

	conn, err := net.Dial("unix", c.String("socket"))
	if err != nil {
		return fmt.Errorf("connecting to timeserver: %w", err)
	}
	defer conn.Close()

	msg := wire.Message{Tag: wire.RUN, Time: seconds}
	if err := wire.Encode(conn, msg); err != nil {
		return fmt.Errorf("sending run: %w", err)
	}

	return nil
}

func parseArg(arg string) (int64, error) {
	switch arg {
	case "", "sleep":
		return wire.NEXTSLEEP, nil
	case "wake":
		return wire.NEXTWAKE, nil
	default:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid argument %q: expected seconds, \"sleep\", or \"wake\"", arg)
		}
		return n, nil
	}
}
