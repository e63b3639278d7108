package testdata

// HKDFVector is an RFC 5869 SHA-256 case truncated to 32 bytes of output.
type HKDFVector struct {
	Name string
	IKM  string // Hex
	Salt string // Hex
	Info string // Hex
	OKM  string // Hex
}

// HKDFVectors are taken from RFC 5869 appendix A.
var HKDFVectors = []HKDFVector{
	{
		Name: "RFC 5869 case 1",
		IKM:  "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
		Salt: "000102030405060708090a0b0c",
		Info: "f0f1f2f3f4f5f6f7f8f9",
		OKM:  "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf",
	},
	{
		Name: "RFC 5869 case 3 (empty salt and info)",
		IKM:  "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
		Salt: "",
		Info: "",
		OKM:  "8da4e775a563c18f715f802a063c5a31b8a11f5c5ee1879ec3454e5f3c738d2d",
	},
}

// KeyWrapVector is an RFC 3394 AES key wrap case.
type KeyWrapVector struct {
	Name       string
	KEK        string // Hex
	KeyData    string // Hex
	Ciphertext string // Hex
}

// KeyWrapVectors are taken from RFC 3394 section 4.
var KeyWrapVectors = []KeyWrapVector{
	{
		Name:       "RFC 3394 4.6: 256 bits of key data with a 256-bit KEK",
		KEK:        "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		KeyData:    "00112233445566778899aabbccddeeff000102030405060708090a0b0c0d0e0f",
		Ciphertext: "28c9f404c4b810f4cbccb35cfb87f8263f5786e2d80ed326cbc7f0e71a99f43bfb988b9b7a02dd21",
	},
}

// DIDVector maps a P-256 public JWK to its did:key.
type DIDVector struct {
	Name string
	X    string // base64url
	Y    string // base64url
	DID  string
}

// DIDVectors contains known did:key encodings.
var DIDVectors = []DIDVector{
	{
		Name: "P-256 reference key",
		X:    "igrFmi0whuihKnj9R3Om1SoMph72wUGeFaBbzG2vzns",
		Y:    "efsX5b10x8yjyrj4ny3pGfLcY7Xby1KzgqOdqnsrJIM",
		DID:  "did:key:zDnaerx9CtbPJ1q36T5Ln5wYt3MQYeGRG5ehnPAmxcf5mDZpv",
	},
}
