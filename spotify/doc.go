// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package spotify is a small Spotify Web API client.

Credentials are JSON-encoded oauth2 tokens. A Session binds one credential
to a series of calls and refreshes the token when it expires:

	sess, err := client.Session(ctx, event.CredentialRef)
	tracks, err := sess.Search(ctx, "daft punk")
	if cred, ok := sess.Refreshed(); ok {
		// persist cred
	}

Dispatcher adapts AppendTrack to the commit path of the voting engine.
*/
package spotify
