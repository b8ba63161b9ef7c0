// Package gmail provides a client for sending mail through the Gmail API.
//
// The client is constructed around an OAuth2 token source supplied by
// the credential broker, so every send call runs with the authorized
// user's credentials. Messages are assembled in RFC 2822 form with
// RFC 2047 subject encoding for non-ASCII characters.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := gmail.NewClient(ctx, tokenSource)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg := &gmail.EmailMessage{
//	    To:      []string{"recipient@example.com"},
//	    Subject: "Hello",
//	    Body:    "This is a test email",
//	    IsHTML:  false,
//	}
//	msgID, err := client.SendEmail(ctx, msg)
//	if err != nil {
//	    log.Fatal(err)
//	}
package gmail
