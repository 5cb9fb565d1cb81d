// Package proxy provides the local reverse proxy in front of the Qilowatt API.
//
// The browser client talks to this proxy on the same origin it was served
// from. The proxy relays its calls upstream, keeps the upstream session
// cookies on the host and replays them on every later request.
//
// # Routes
//
//   - POST /api/user/login: relayed over a fresh HTTP/2 session per request.
//     Set-Cookie headers from the response are recorded in the store.
//   - /api/*: streamed upstream with the Authorization header intact.
//   - /devices*: streamed upstream with the Authorization header removed.
//   - anything else: served from the static client directory, if set.
//
// # Configuration
//
//	cfg := &proxy.Config{
//	    ListenAddr:        ":8080",
//	    TargetURL:         "https://app.qilowatt.it",
//	    LoginTimeout:      15 * time.Second,
//	    StaticDir:         "./web",
//	    DiagnosticLogPath: "/tmp/proxy-debug.log",
//	}
//
// # Running the Proxy
//
//	srv, err := proxy.NewServer(cfg)
//	if err != nil {
//	    return err
//	}
//	srv.Start() // Blocks until Shutdown
//
// # Login Failures
//
// A failed login is answered with a JSON body of the form
// {"status":false,"message":"..."}: 504 when the exchange outlives the
// login timeout, 502 when the upstream cannot be reached or drops the
// exchange, 500 for faults inside the proxy.
package proxy
