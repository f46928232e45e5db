package payroll

import "encoding/json"

func (s Summary) MarshalToJSON() (res []byte, err error) {
	return json.Marshal(s)
}

func (r DecryptedReview) MarshalToJSON() (res []byte, err error) {
	return json.Marshal(r)
}
