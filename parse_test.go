package onvif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const servicesFixture = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"
              xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
  <env:Body>
    <tds:GetServicesResponse>
      <tds:Service>
        <tds:Namespace>http://www.onvif.org/ver10/device/wsdl</tds:Namespace>
        <tds:XAddr>http://192.168.1.10/onvif/device_service</tds:XAddr>
      </tds:Service>
      <tds:Service>
        <tds:Namespace>http://www.onvif.org/ver20/media/wsdl</tds:Namespace>
        <tds:XAddr>http://192.168.1.10:80/onvif/Media2?channel=1</tds:XAddr>
      </tds:Service>
      <tds:Service>
        <tds:Namespace>http://www.onvif.org/ver20/imaging/wsdl</tds:Namespace>
        <tds:XAddr>http://192.168.1.10/onvif/imaging</tds:XAddr>
      </tds:Service>
      <tds:Service>
        <tds:Namespace>http://www.onvif.org/ver10/events/wsdl</tds:Namespace>
        <tds:XAddr></tds:XAddr>
      </tds:Service>
    </tds:GetServicesResponse>
  </env:Body>
</env:Envelope>`

func TestParseServices(t *testing.T) {
	services, err := ParseServices([]byte(servicesFixture))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		NamespaceDevice: "/onvif/device_service",
		NamespaceMedia:  "/onvif/Media2?channel=1",
		"http://www.onvif.org/ver20/imaging/wsdl": "/onvif/imaging",
	}, services)

	paths := DefaultServicePaths()
	assert.Equal(t, 2, paths.apply(services))
	assert.Equal(t, ServicePaths{
		Services:          "/onvif/device_service",
		DeviceInformation: "/onvif/device_service",
		Profiles:          "/onvif/Media2?channel=1",
		StreamURI:         "/onvif/Media2?channel=1",
	}, paths)
}

func TestServicePaths_UnrecognizedOnly(t *testing.T) {
	paths := DefaultServicePaths()
	n := paths.apply(map[string]string{"http://www.onvif.org/ver10/events/wsdl": "/events"})

	assert.Zero(t, n)
	assert.Equal(t, DefaultServicePaths(), paths)
	assert.Equal(t, DefaultServicePath, paths.For(OpGetStreamURI))
}

func TestParseServices_MissingResponse(t *testing.T) {
	_, err := ParseServices([]byte(`<s:Envelope xmlns:s="x"><s:Body><Other/></s:Body></s:Envelope>`))
	require.Error(t, err)

	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, MissingField, perr.Kind)
	assert.Equal(t, "GetServicesResponse", perr.Field)
}

func TestParseDeviceInformation(t *testing.T) {
	body := `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"
	xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
	<SOAP-ENV:Body>
		<tds:GetDeviceInformationResponse>
			<tds:Manufacturer>Acme</tds:Manufacturer>
			<tds:Model> X200 </tds:Model>
			<tds:FirmwareVersion>2.4.1</tds:FirmwareVersion>
			<tds:SerialNumber>SN42</tds:SerialNumber>
			<tds:HardwareId>HW7</tds:HardwareId>
		</tds:GetDeviceInformationResponse>
	</SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

	info, err := ParseDeviceInformation([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, DeviceInformation{
		Manufacturer:    "Acme",
		Model:           "X200",
		FirmwareVersion: "2.4.1",
		SerialNumber:    "SN42",
		HardwareID:      "HW7",
	}, info)
	assert.Equal(t, "Manufacturer: Acme, Model: X200, Firmware: 2.4.1, Serial: SN42, HardwareID: HW7", info.String())
	assert.Equal(t, "Acme X200", info.DisplayName())
}

func TestParseDeviceInformation_PartialAndCharset(t *testing.T) {
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<Envelope><Body><GetDeviceInformationResponse>" +
		"<Manufacturer>Cam\xe9ra</Manufacturer>" +
		"</GetDeviceInformationResponse></Body></Envelope>"

	info, err := ParseDeviceInformation([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Caméra", info.Manufacturer)
	assert.Empty(t, info.Model)
	assert.Equal(t, "Manufacturer: Caméra", info.String())
	assert.Equal(t, "No device information reported", DeviceInformation{}.String())
}

func TestParseProfiles(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []MediaProfile
	}{
		{
			name: "media2 prefixes",
			body: `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:tr2="http://www.onvif.org/ver20/media/wsdl">
				<s:Body><tr2:GetProfilesResponse>
					<tr2:Profiles token="profile_1" fixed="true"><tr2:Name>mainStream</tr2:Name></tr2:Profiles>
					<tr2:Profiles token="profile_2"><tr2:Name>subStream</tr2:Name></tr2:Profiles>
				</tr2:GetProfilesResponse></s:Body></s:Envelope>`,
			expected: []MediaProfile{{Token: "profile_1", Name: "mainStream"}, {Token: "profile_2", Name: "subStream"}},
		},
		{
			name: "media1 prefixes",
			body: `<Envelope><Body><trt:GetProfilesResponse xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema">
					<trt:Profiles token="MainProfile"><tt:Name>Main</tt:Name>
						<tt:VideoEncoderConfiguration token="enc"><tt:Name>H264</tt:Name></tt:VideoEncoderConfiguration>
					</trt:Profiles>
				</trt:GetProfilesResponse></Body></Envelope>`,
			expected: []MediaProfile{{Token: "MainProfile", Name: "Main"}},
		},
		{
			name:     "no profiles",
			body:     `<Envelope><Body><GetProfilesResponse/></Body></Envelope>`,
			expected: []MediaProfile{},
		},
		{
			name: "profile without token",
			body: `<Envelope><Body><GetProfilesResponse>
					<Profiles><Name>broken</Name></Profiles>
					<Profiles token="ok"><Name>fine</Name></Profiles>
				</GetProfilesResponse></Body></Envelope>`,
			expected: []MediaProfile{{Token: "ok", Name: "fine"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := ParseProfiles([]byte(tt.body))
			require.NoError(t, err)
			require.NotNil(t, profiles)
			assert.Equal(t, tt.expected, profiles)
		})
	}
}

func TestParseStreamURI(t *testing.T) {
	media2 := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>
		<tr2:GetStreamUriResponse xmlns:tr2="http://www.onvif.org/ver20/media/wsdl">
			<tr2:Uri>rtsp://10.0.0.5:554/stream1</tr2:Uri>
		</tr2:GetStreamUriResponse></s:Body></s:Envelope>`
	uri, err := ParseStreamURI([]byte(media2))
	require.NoError(t, err)
	assert.Equal(t, "rtsp://10.0.0.5:554/stream1", uri)

	media1 := `<Envelope><Body><GetStreamUriResponse><MediaUri>
		<Uri>rtsp://10.0.0.5/Streaming/Channels/101</Uri>
		<InvalidAfterConnect>false</InvalidAfterConnect>
	</MediaUri></GetStreamUriResponse></Body></Envelope>`
	uri, err = ParseStreamURI([]byte(media1))
	require.NoError(t, err)
	assert.Equal(t, "rtsp://10.0.0.5/Streaming/Channels/101", uri)
}

func TestParseStreamURI_MissingUri(t *testing.T) {
	_, err := ParseStreamURI([]byte(`<Envelope><Body><GetStreamUriResponse/></Body></Envelope>`))
	require.Error(t, err)

	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, MissingField, perr.Kind)
	assert.Equal(t, "Uri", perr.Field)
	assert.Equal(t, OpGetStreamURI, perr.Operation)
}

func TestParse_Malformed(t *testing.T) {
	for _, body := range []string{"not xml", "<s:Envelope><<", ""} {
		t.Run(body, func(t *testing.T) {
			for _, op := range []Operation{OpGetServices, OpGetDeviceInformation, OpGetProfiles, OpGetStreamURI} {
				_, err := ParseResponse(op, []byte(body))
				require.Error(t, err)

				perr, ok := err.(*ParseError)
				require.True(t, ok, "%s: %v", op, err)
				assert.Equal(t, Malformed, perr.Kind)
			}
		})
	}
}

func TestParse_Fault(t *testing.T) {
	body := `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"><SOAP-ENV:Body>
		<SOAP-ENV:Fault>
			<SOAP-ENV:Code><SOAP-ENV:Value>SOAP-ENV:Sender</SOAP-ENV:Value>
				<SOAP-ENV:Subcode><SOAP-ENV:Value>ter:InvalidArgVal</SOAP-ENV:Value></SOAP-ENV:Subcode>
			</SOAP-ENV:Code>
			<SOAP-ENV:Reason><SOAP-ENV:Text xml:lang="en">Profile token does not exist</SOAP-ENV:Text></SOAP-ENV:Reason>
		</SOAP-ENV:Fault>
	</SOAP-ENV:Body></SOAP-ENV:Envelope>`

	_, err := ParseStreamURI([]byte(body))
	require.Error(t, err)

	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, Fault, perr.Kind)
	assert.Contains(t, err.Error(), "Profile token does not exist")
}

func TestParse_FaultSOAP11(t *testing.T) {
	body := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
		<soap:Fault><faultcode>soap:Client</faultcode><faultstring>Sender not authorized</faultstring></soap:Fault>
	</soap:Body></soap:Envelope>`

	_, err := ParseDeviceInformation([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sender not authorized")
}
