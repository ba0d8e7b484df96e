/*
Iomux relays a byte stream to every TCP client connected to it.

Usage:

	iomux [flags] [-]
	iomux [flags] [--] command [args...]

Without a command, or with a lone "-", iomux reads its standard input
from the start and sends every chunk it reads to the clients connected
at that moment. Reaching the end of the input ends iomux.

With a command, iomux waits for a first client, spawns the command and
sends its standard output to the clients. When the output ends, the
clients are hung up and the command is spawned again for the next
client. When every client is gone before that, the rest of the output
is discarded and the command is spawned again for the next client.

Flags:

	-l, --listen ADDRESS:PORT
		Address to accept clients on. Default: localhost:1234.
	-b, --block
		Write every chunk fully to every client, waiting for slow ones.
		By default a client that cannot take a chunk right away misses it.
	-p, --parallel
		Write each chunk to all clients concurrently.
	--workers N
		Concurrent writes in parallel mode. Default: GOMAXPROCS.
	--exit-on-empty
		Stop as soon as the last client disconnects.
	--chunk-size N
		Bytes read from the source at a time. Default: 4096.
	--rate BYTES
		Read the source at most this many bytes per second.
	--announce NAME
		Advertise the relay on the local link over mDNS as
		NAME._iomux._tcp.local.
	-c, --config FILE
		Read settings from a YAML file. Keys: listen, block, parallel,
		workers, exit_on_empty, chunk_size, rate, announce, command,
		log_format, verbose. Flags given on the command line win.
	-v, --verbose
		Log debug messages.
	--log-format text|json
		Format of the log written to standard error.
	--version
		Print the version and exit.

SIGINT and SIGTERM stop iomux; a running command is killed.
*/
package main
