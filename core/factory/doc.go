// Package factory turns `type` + `conf` configuration entries into concrete
// implementations. The metrics sinks are built this way:
//
//	metrics:
//	  sinks:
//	    - type: prometheus
//	    - type: influx
//	      conf: {url: "http://influx:8086", bucket: "aq"}
//
// Each type registers a Factory that decodes its conf with Decode.
package factory
