package database

import (
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// InitNats connects to the NATS server that receives ledger events
func InitNats() (*nats.Conn, error) {
	viper.SetDefault("nats.url", nats.DefaultURL)

	opts := []nats.Option{
		nats.Name("event-ledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
	}

	// if token provided
	if token := viper.GetString("nats.token"); token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(viper.GetString("nats.url"), opts...)
	if err != nil {
		return nil, err
	}

	log.Println("NATS connection established")
	return conn, nil
}
