// sensor-emulator answers barograph sensor requests over TCP with
// simulated readings, for use with a "tcp" sensor during development.
package main

import (
	"bufio"
	"context"
	"flag"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chrissnell/barograph/internal/log"
	"github.com/chrissnell/barograph/internal/sensor"
)

func main() {
	var (
		addr     = flag.String("listen", "127.0.0.1:8123", "TCP address to listen on")
		drain    = flag.Float64("drain", 0.0002, "battery volts lost per reading")
		failRate = flag.Int("fail-every", 0, "answer every Nth request with garbage (0 never)")
		debug    = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Errorf("failed to listen on %s: %v", *addr, err)
		os.Exit(1)
	}
	defer listener.Close()
	log.Infof("barograph sensor emulator listening on %s", listener.Addr())

	battery := sensor.NewSimulatedBattery()
	battery.DrainPerRead = float32(*drain)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Errorf("failed to accept connection: %v", err)
			continue
		}
		log.Infof("client connected from %s", conn.RemoteAddr())
		go handleConnection(conn, battery, *failRate)
	}
}

func handleConnection(conn net.Conn, battery *sensor.SimulatedBattery, failEvery int) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	requests := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Infof("client %s disconnected", conn.RemoteAddr())
			return
		}
		if strings.TrimSpace(line) != "R" {
			continue
		}
		requests++

		reply := "ERR\r\n"
		if failEvery <= 0 || requests%failEvery != 0 {
			b, _ := battery.Read(context.Background())
			reply = sensor.FormatLine(sensor.SimulatedReading(time.Now()), b.Volts)
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			log.Errorf("failed to send reply: %v", err)
			return
		}
		log.Debugf("sent %q", strings.TrimSpace(reply))
	}
}
