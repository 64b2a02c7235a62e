package acceptance

import (
	"context"
	"io"
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	resp, err := http.Get(s.BaseURL + "/health")
	s.Require().NoError(err, "Failed to make request")
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), `"postgres":"pass"`)
	s.Contains(string(body), `"redis":"pass"`)
}

func (s *Suite) TestMetricsExposeAuthCounters() {
	c := s.newClient()
	_, err := c.Login(context.Background(), adminEmail, adminPassword)
	s.Require().NoError(err)

	resp, err := http.Get(s.BaseURL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "auth_logins")
}
