package v3

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

func TestConfigValidateDisabledBlockAlwaysPasses(t *testing.T) {
	require.NoError(t, Config{Enabled: false}.Validate())
}

func TestConfigValidateRequiresUsername(t *testing.T) {
	err := Config{Enabled: true}.Validate()
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestConfigValidateRequiresAuthKeyWhenAuthSet(t *testing.T) {
	err := Config{Enabled: true, Username: "op", Auth: AuthSHA1}.Validate()
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestConfigValidateRequiresAuthBeforePriv(t *testing.T) {
	err := Config{Enabled: true, Username: "op", Priv: PrivAES128, PrivKey: "k"}.Validate()
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestConfigValidateRejects3DES(t *testing.T) {
	err := Config{Enabled: true, Username: "op", Auth: AuthSHA1, AuthKey: "a", Priv: Priv3DES, PrivKey: "p"}.Validate()
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestConfigValidateAcceptsAuthPrivBlock(t *testing.T) {
	err := Config{Enabled: true, Username: "op", Auth: AuthSHA256, AuthKey: "authkey1", Priv: PrivAES128, PrivKey: "privkey1"}.Validate()
	require.NoError(t, err)
}

func TestConfigSecurityLevelTracksAuthAndPriv(t *testing.T) {
	require.Equal(t, gosnmp.NoAuthNoPriv, Config{}.SecurityLevel())
	require.Equal(t, gosnmp.AuthNoPriv, Config{Auth: AuthSHA1}.SecurityLevel())
	require.Equal(t, gosnmp.AuthPriv, Config{Auth: AuthSHA1, Priv: PrivAES128}.SecurityLevel())
}

func TestConfigBuildUSMCarriesEngineAndUser(t *testing.T) {
	c := Config{EngineID: "abc", Username: "op", Auth: AuthSHA256, AuthKey: "authkey1", Priv: PrivAES256, PrivKey: "privkey1"}
	usm := c.BuildUSM(3, 120)
	require.Equal(t, "abc", usm.AuthoritativeEngineID)
	require.EqualValues(t, 3, usm.AuthoritativeEngineBoots)
	require.EqualValues(t, 120, usm.AuthoritativeEngineTime)
	require.Equal(t, "op", usm.UserName)
	require.Equal(t, gosnmp.SHA256, usm.AuthenticationProtocol)
	require.Equal(t, gosnmp.AES256, usm.PrivacyProtocol)
}
