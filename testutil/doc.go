// Package testutil holds fakes shared by connector tests.
//
// RecordingListener stands in for an upstream component answering capability
// announcements. RecordingSink collects published tap events so tests can
// assert on the event stream without a NATS server.
//
//	listener := testutil.NewRecordingListener(caps.MustParse("audio/x-opus"))
//	conn.Broadcaster().Register(listener)
//
//	sink := testutil.NewRecordingSink()
//	pub := events.NewPublisher("test", sink)
package testutil
