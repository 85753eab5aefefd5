package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/nodeos/pkg/monitor"
	"github.com/robotalks/nodeos/pkg/transport/mqtt"
)

var (
	mqttURL    = "mqtt://localhost:1883/nodeos/"
	outputJSON bool
)

func init() {
	if val := os.Getenv("NODEOS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print reports in JSON.")
}

func printReport(topic string, report *monitor.Report) {
	if !outputJSON {
		log.Printf("%s: %s", topic, report.String())
		return
	}
	out, err := json.Marshal(report)
	if err != nil {
		log.Printf("%s: %v", topic, err)
		return
	}
	log.Printf("%s: %s", topic, out)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("+/+/meta", mqtt.Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: gone", strings.TrimSuffix(topic, "/meta"))
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	}))
	q.Sub("+/+/status", mqtt.Handler(func(topic string, payload []byte) {
		report, err := monitor.Decode(payload)
		if err != nil {
			log.Printf("%s: bad report: %v", topic, err)
			return
		}
		printReport(topic, report)
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
