// Package metrics defines the Prometheus collectors of semodwatch. There is
// no listener: collectors are written to a node_exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/listenupapp/semodwatch/internal/errors"
)

// WriteTextfile writes every registered collector to path in the text
// exposition format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return writeTextfile(path, prometheus.DefaultGatherer)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "write metrics to %s", path)
	}
	return nil
}
