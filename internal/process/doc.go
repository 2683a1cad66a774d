// Package process runs a single subprocess whose stdout is consumed as a
// byte stream.
//
// A Process:
//   - Starts the command in its own process group
//   - Hands stdout to the caller as an io.Reader that ends with io.EOF
//   - Logs stderr through a pluggable LogParser
//   - Stops with SIGINT, then SIGKILL once the graceful timeout passes
//
// Example:
//
//	p := process.New("cam", []string{"ffmpeg", "-i", url, "-f", "mjpeg", "pipe:1"}, logger)
//	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
//	stdout, err := p.Start()
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
package process
