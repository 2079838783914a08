// Command iec104client is a worked example exercising the client end to
// end: connect, start data transfer, interrogate a station, and read a tag
// back out of the resulting cache. It mirrors the teacher's
// examples/client/client.go shape, generalized from a hardcoded session to
// the driver facade.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scada-io/iec104/driver"
	"github.com/scada-io/iec104/scheduler"
)

func main() {
	address := flag.String("address", "127.0.0.1:2404", "host:port of the controlled station")
	ca := flag.Uint("ca", 1, "common address")
	tagAddr := flag.String("tag", "1.100.9", "tag address CA.IOA.TypeID to read after interrogation")
	timeout := flag.Duration("timeout", 10*time.Second, "connect timeout")
	flag.Parse()

	lg := logrus.New()
	lg.SetLevel(logrus.InfoLevel)

	facade := driver.NewFacade(lg)
	err := facade.RegisterDevice(driver.DeviceConfig{
		Name:          "station",
		IP:            hostOnly(*address),
		Port:          portOnly(*address),
		CommonAddress: uint16(*ca),
		Blocks: []scheduler.Config{
			{CA: uint16(*ca), QOI: scheduler.InterrogationStation, Period: 30 * time.Second, Enabled: true},
		},
	})
	if err != nil {
		lg.WithError(err).Fatal("register device")
	}
	if err := facade.RegisterTag("demo", *tagAddr); err != nil {
		lg.WithError(err).Fatal("register tag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := facade.Connect(ctx, "station"); err != nil {
		lg.WithError(err).Fatal("connect")
	}

	time.Sleep(6 * time.Second) // let the first interrogation cycle land

	val, err := facade.ReadTag("demo")
	if err != nil {
		lg.WithError(err).Error("read tag")
		os.Exit(1)
	}
	fmt.Printf("demo = %s\n", val)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOnly(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return iec104DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return iec104DefaultPort
	}
	return port
}

const iec104DefaultPort = 2404
