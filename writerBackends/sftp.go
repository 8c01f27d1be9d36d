package writerbackends

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.trai.ch/zerr"
	"golang.org/x/crypto/ssh"

	"pixopt/logger"
)

// sshAuth picks key auth over password auth. privateKey may be base64 or raw PEM.
func sshAuth(accessInfo map[string]string) ([]ssh.AuthMethod, error) {
	if privateKey := accessInfo["privateKey"]; privateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			keyBytes = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, zerr.Wrap(err, "parse private key")
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if password := accessInfo["password"]; password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	return nil, zerr.New("no auth method provided; set password or privateKey")
}

// UploadToSFTPWithCreds uploads content from an io.Reader to a remote server
// via SFTP. accessInfo needs host, user, remoteDir and either password or
// privateKey; port defaults to 22.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	host := accessInfo["host"]
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	user := accessInfo["user"]
	remoteDir := accessInfo["remoteDir"]
	if host == "" || user == "" || remoteDir == "" {
		return zerr.New("missing required accessInfo keys: host, user, remoteDir")
	}
	remotePath := path.Join(remoteDir, objectPath(accessInfo))

	auths, err := sshAuth(accessInfo)
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(host, port)
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "dial tcp"), "addr", addr)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return zerr.With(zerr.Wrap(err, "ssh handshake"), "addr", addr)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return zerr.Wrap(err, "create sftp client")
	}
	defer sftpClient.Close()

	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(sftpClient, dir); err != nil {
		return zerr.With(zerr.Wrap(err, "ensure remote dir"), "dir", dir)
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "create remote file"), "path", remotePath)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return zerr.With(zerr.Wrap(err, "copy to remote file"), "path", remotePath)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remotePath, addr)
	return nil
}

// mkdirAllSFTP creates each missing segment of dir on the server.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range strings.Split(dir, "/") {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return zerr.With(zerr.Wrap(err, "stat"), "path", cur)
			}
			if err := client.Mkdir(cur); err != nil {
				return zerr.With(zerr.Wrap(err, "mkdir"), "path", cur)
			}
		}
	}
	return nil
}
