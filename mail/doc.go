// Package mail builds RFC 2822 style email messages and hands them to a
// Transport for delivery.
//
// A Message is a mutable builder. Setters return the receiver so calls can be
// chained:
//
//	ok, err := mail.New(t).
//		SetTo("john@example.com", "John Smith").
//		SetFrom("no-reply@example.com", "Example").
//		SetSubject("Test Message").
//		SetMessage("This is a test message.").
//		AddAttachment("report.pdf", "").
//		Send(ctx)
//
// Invalid input does not break the chain. The first validation or attachment
// read error is kept on the Message, reported by Err, and returned by Send
// before any transport is contacted.
//
// Every value that ends up in a header line is sanitised so it cannot carry
// CR or LF characters. Display names and subjects are written as RFC 2047
// encoded words.
package mail
