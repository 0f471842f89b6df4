// Package config provides environment-driven configuration for the cue
// remote backend.
//
// Configuration is loaded from environment variables with defaults that
// match a single QLab machine on the show network. An optional YAML file can
// list additional servers and per-workspace passcodes:
//
//	servers:
//	  - name: Museo
//	    host: 10.0.1.111
//	    port: 53000
//	    passcodes:
//	      Main Show: "4321"
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - QLAB_SERVERS, QLAB_CONFIG, QLAB_REFRESH_INTERVAL, QLAB_REPLY_TIMEOUT,
//     QLAB_CONNECT_TIMEOUT, QLAB_AUTO_CONNECT
//   - CUE_DEBOUNCE, CONFIRM_TIMEOUT, ACTIVITY_SIZE
package config
