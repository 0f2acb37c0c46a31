// Command echoserver is a small demo driver exercising the slava core: it
// speaks just enough of HTTP/1.0 to read a request line and reply with a
// fixed payload and Connection: close.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/chuigda/slava"
)

const httpHeader = "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n"

func main() {
	port := flag.Int("port", 4396, "TCP port to listen on")
	workers := flag.Int("workers", 4, "number of scheduler worker goroutines (0 runs single-threaded)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	slava.SetLogger(log)

	sched := slava.NewScheduler()

	listener, err := slava.Bind(uint16(*port))
	if err != nil {
		log.Fatal().Err(err).Msg("bind failed")
	}

	err = sched.Spawn(func(aw *slava.Awaiter) {
		log.Info().Int("port", *port).Msg("listening")
		for {
			stream, err := listener.Accept(aw)
			if err != nil {
				log.Error().Err(err).Msg("accept failed")
				continue
			}

			err = sched.Spawn(func(aw *slava.Awaiter) {
				defer stream.Close()

				reader := slava.NewBufRead(stream)
				requestLine, err := reader.ReadLine(aw)
				if err != nil {
					log.Error().Err(err).Msg("error reading request line")
					return
				}
				log.Debug().Str("request", requestLine).Msg("handling request")

				if _, err := stream.WriteBytes(aw, []byte(httpHeader)); err != nil {
					log.Error().Err(err).Msg("error writing header")
					return
				}
				if _, err := stream.WriteBytes(aw, []byte("PONG\n")); err != nil {
					log.Error().Err(err).Msg("error writing body")
					return
				}
			})
			if err != nil {
				log.Error().Err(err).Msg("spawn handler failed")
				stream.Close()
			}
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("spawn accept loop failed")
	}

	if *workers == 0 {
		sched.RunSingleThreaded()
	} else {
		sched.Run(*workers)
	}
}
