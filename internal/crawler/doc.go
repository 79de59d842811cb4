// Package crawler drives the door plate portal's session protocol.
//
// One Engine owns one Transport (and therefore one cookie session). A run
// negotiates a Session, solves a captcha once, and then threads the portal's
// continuation token through every page and district it queries. All
// operations against a Session are strictly sequential; run separate Engines
// to crawl several cities at once.
package crawler
